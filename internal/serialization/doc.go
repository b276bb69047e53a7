// Package serialization reads and writes tensors in the SafeTensors format.
//
// The format is used for the per-pixel mean/std artifact consumed by the data
// pipeline and for training checkpoints:
//
//	Format Structure:
//	  [8 bytes: Header Size (uint64 LE)]
//	  [Header: JSON object, name -> {dtype, shape, data_offsets}, plus "__metadata__"]
//	  [Tensor data: raw little-endian bytes, tensors in alphabetical order]
//
// Tensors are held as float64 in memory. The writer emits F64; the reader
// accepts F64, F32 and U8 and widens to float64.
//
// Example usage:
//
//	// Save
//	err := serialization.WriteSafeTensors("meanstd.safetensors",
//	    map[string]*tensor.RawTensor{"mean": mean, "std": std}, nil)
//
//	// Load
//	reader, err := serialization.OpenSafeTensors("meanstd.safetensors")
//	mean, err := reader.Tensor("mean")
package serialization
