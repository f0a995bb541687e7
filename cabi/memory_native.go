//go:build ncnn && cgo && !stub

package main

// nativeEngineMemory reports that engine buffers live in the native
// allocator and can be handed to C as they are.
const nativeEngineMemory = true
