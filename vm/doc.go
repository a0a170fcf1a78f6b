// Package vm implements the SIL virtual machine (Vsp).
//
// This package contains:
//   - The register file, bounded stack and heap over a segmented address space
//   - The step/run loop with a cycle ceiling
//   - The fault taxonomy (decode, memory, mode, dispatch, entanglement, limit)
//   - Address breakpoints
//   - Host device dispatch for ports, sensors, actuators and syscalls
//   - The entanglement hook used by ESEND and ERECV
package vm
