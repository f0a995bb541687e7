package main

/*
#include <stdint.h>
#include <stdlib.h>
#include <string.h>

#include "w2x_image.h"
*/
import "C"

import "unsafe"

// Helpers that build arguments the way a C caller does, with every
// struct and pixel array in C memory.

// newInputImage copies pixels into a C-allocated Image.
func newInputImage(pixels []byte, w, h, c int) *C.Image {
	img := (*C.Image)(C.calloc(1, C.size_t(unsafe.Sizeof(C.Image{}))))
	img.w, img.h, img.c = C.int(w), C.int(h), C.int(c)
	if len(pixels) > 0 {
		img.data = (*C.uchar)(C.malloc(C.size_t(len(pixels))))
		C.memcpy(unsafe.Pointer(img.data), unsafe.Pointer(&pixels[0]), C.size_t(len(pixels)))
	}
	return img
}

// newOutputImage returns an Image with the declared output size and no data.
func newOutputImage(w, h int) *C.Image {
	img := (*C.Image)(C.calloc(1, C.size_t(unsafe.Sizeof(C.Image{}))))
	img.w, img.h = C.int(w), C.int(h)
	return img
}

// freeInputImage frees an Image from newInputImage with its pixels.
func freeInputImage(img *C.Image) {
	if img == nil {
		return
	}
	C.free(unsafe.Pointer(img.data))
	C.free(unsafe.Pointer(img))
}

// freeImageStruct frees the Image struct only; its data belongs to the
// library until free_image or free_buffer.
func freeImageStruct(img *C.Image) {
	C.free(unsafe.Pointer(img))
}

// imageShape returns the dimensions recorded in img.
func imageShape(img *C.Image) (w, h, c int) {
	return int(img.w), int(img.h), int(img.c)
}

// imageData returns img's data pointer, nil when unset.
func imageData(img *C.Image) *C.uchar {
	return img.data
}

// imagePixels copies w*h*c bytes out of img.
func imagePixels(img *C.Image) []byte {
	if img.data == nil {
		return nil
	}
	w, h, c := imageShape(img)
	return C.GoBytes(unsafe.Pointer(img.data), C.int(w*h*c))
}

// cString returns a C copy of s, freed with freeCString.
func cString(s string) *C.char {
	return C.CString(s)
}

func freeCString(s *C.char) {
	C.free(unsafe.Pointer(s))
}

// lastErrorString returns and clears the message behind w2x_last_error.
func lastErrorString() string {
	msg := w2x_last_error()
	if msg == nil {
		return ""
	}
	defer w2x_free_string(msg)
	return C.GoString(msg)
}

// cHandle converts a handle for passing back into an export.
func cHandle(h uintptr) C.uintptr_t {
	return C.uintptr_t(h)
}
