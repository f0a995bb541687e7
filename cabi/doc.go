// Command cabi builds the waifu2x C ABI as a shared library:
//
//	go build -tags ncnn -buildmode=c-shared -o libwaifu2x.so ./cabi
//
// Every object crossing the boundary is an opaque uintptr_t handle. The
// GPU context is created and destroyed by the caller and passed to
// init_waifu2x; free_waifu2x never touches it. Functions returning int
// report a w2xruntime status code (0 on success) and leave the message
// for w2x_last_error.
package main

func main() {}
