//go:build !ncnn || !cgo || stub

package main

// nativeEngineMemory is false for the software backend: its buffers are
// Go memory and are copied before C may keep a pointer to them.
const nativeEngineMemory = false
