// Package sil provides the scalar and vector value types executed by the
// VSP virtual machine.
//
// A ByteSil is a complex number quantized onto a 16x16 log-polar grid and
// packed into one byte. All ByteSil arithmetic is total: results saturate on
// the magnitude axis and wrap on the phase axis, so no operation can fail.
//
// A State is a fixed array of 16 ByteSil layers grouped by role:
//
//	0-4  perception
//	5-7  processing
//	8-A  interaction
//	B-C  emergence
//	D-F  meta
//
// States are values. WithLayer, Tensor and Apply return new states.
package sil
