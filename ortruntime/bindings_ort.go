//go:build ort && cgo

// Real CGo binding against the ONNX Runtime C API.
// Build with: CGO_ENABLED=1 go build -tags ort
//
// Prerequisites:
//  1. An ONNX Runtime release unpacked under deps/onnxruntime (or adjust
//     CGO_CFLAGS/CGO_LDFLAGS to point at an existing install)
//  2. onnxruntime_c_api.h on the include path
//  3. libonnxruntime on the linker and runtime library path
//
// Example:
//
//	CGO_CFLAGS="-I${ORT_DIR}/include" \
//	CGO_LDFLAGS="-L${ORT_DIR}/lib -lonnxruntime -Wl,-rpath,${ORT_DIR}/lib" \
//	go build -tags ort
//
// Note: CreateSession takes a char* path on POSIX and wchar_t* on Windows;
// this binding targets POSIX. Windows builds use the stub.

package ortruntime

/*
#cgo CFLAGS: -I${SRCDIR}/../deps/onnxruntime/include
#cgo LDFLAGS: -L${SRCDIR}/../deps/onnxruntime/lib -lonnxruntime
#cgo linux LDFLAGS: -Wl,-rpath,${SRCDIR}/../deps/onnxruntime/lib

#include <stdlib.h>
#include <string.h>
#include <onnxruntime_c_api.h>

static const OrtApi* g_api = NULL;

// ort_status_msg converts an OrtStatus into a heap-allocated message the Go
// side owns, releasing the status. NULL means success.
static char* ort_status_msg(OrtStatus* st) {
	if (st == NULL) return NULL;
	const char* m = g_api->GetErrorMessage(st);
	char* copy = strdup(m != NULL ? m : "unknown onnxruntime error");
	g_api->ReleaseStatus(st);
	return copy;
}

static char* ort_init(void) {
	if (g_api == NULL) {
		g_api = OrtGetApiBase()->GetApi(ORT_API_VERSION);
	}
	if (g_api == NULL) {
		return strdup("onnxruntime library does not provide the requested C API version");
	}
	return NULL;
}

static const char* ort_version(void) {
	return OrtGetApiBase()->GetVersionString();
}

static char* ort_create_env(OrtEnv** env) {
	return ort_status_msg(g_api->CreateEnv(ORT_LOGGING_LEVEL_WARNING, "upscaler", env));
}

static char* ort_create_session(OrtEnv* env, const char* model_path, int intra_threads, OrtSession** out) {
	OrtSessionOptions* opts = NULL;
	char* msg = ort_status_msg(g_api->CreateSessionOptions(&opts));
	if (msg != NULL) return msg;
	if (intra_threads > 0) {
		msg = ort_status_msg(g_api->SetIntraOpNumThreads(opts, intra_threads));
		if (msg != NULL) { g_api->ReleaseSessionOptions(opts); return msg; }
	}
	msg = ort_status_msg(g_api->SetSessionGraphOptimizationLevel(opts, ORT_ENABLE_ALL));
	if (msg != NULL) { g_api->ReleaseSessionOptions(opts); return msg; }
	msg = ort_status_msg(g_api->CreateSession(env, model_path, opts, out));
	g_api->ReleaseSessionOptions(opts);
	return msg;
}

// ort_io_name fetches the idx-th input (output=0) or output (output=1) name
// into a malloc'd buffer.
static char* ort_io_name(OrtSession* sess, int output, char** name) {
	OrtAllocator* alloc = NULL;
	char* msg = ort_status_msg(g_api->GetAllocatorWithDefaultOptions(&alloc));
	if (msg != NULL) return msg;

	char* owned = NULL;
	if (output) {
		msg = ort_status_msg(g_api->SessionGetOutputName(sess, 0, alloc, &owned));
	} else {
		msg = ort_status_msg(g_api->SessionGetInputName(sess, 0, alloc, &owned));
	}
	if (msg != NULL) return msg;

	*name = strdup(owned);
	g_api->ReleaseStatus(g_api->AllocatorFree(alloc, owned));
	return NULL;
}

// ort_run executes one forward pass on a [1,3,h,w] float tensor and returns
// a malloc'd copy of the [1,3,out_h,out_w] output.
static char* ort_run(OrtSession* sess, const char* input_name, const char* output_name,
	float* data, int64_t h, int64_t w,
	float** out_data, int64_t* out_h, int64_t* out_w) {

	OrtMemoryInfo* mem = NULL;
	OrtValue* input = NULL;
	OrtValue* output = NULL;
	int64_t shape[4] = {1, 3, h, w};
	size_t bytes = (size_t)(3 * h * w) * sizeof(float);

	char* msg = ort_status_msg(g_api->CreateCpuMemoryInfo(OrtArenaAllocator, OrtMemTypeDefault, &mem));
	if (msg != NULL) return msg;
	msg = ort_status_msg(g_api->CreateTensorWithDataAsOrtValue(
		mem, data, bytes, shape, 4, ONNX_TENSOR_ELEMENT_DATA_TYPE_FLOAT, &input));
	g_api->ReleaseMemoryInfo(mem);
	if (msg != NULL) return msg;

	msg = ort_status_msg(g_api->Run(sess, NULL,
		&input_name, (const OrtValue* const*)&input, 1,
		&output_name, 1, &output));
	g_api->ReleaseValue(input);
	if (msg != NULL) return msg;

	OrtTensorTypeAndShapeInfo* info = NULL;
	msg = ort_status_msg(g_api->GetTensorTypeAndShape(output, &info));
	if (msg != NULL) { g_api->ReleaseValue(output); return msg; }
	int64_t dims[4] = {0, 0, 0, 0};
	msg = ort_status_msg(g_api->GetDimensions(info, dims, 4));
	g_api->ReleaseTensorTypeAndShapeInfo(info);
	if (msg != NULL) { g_api->ReleaseValue(output); return msg; }
	if (dims[0] != 1 || dims[1] != 3 || dims[2] <= 0 || dims[3] <= 0) {
		g_api->ReleaseValue(output);
		return strdup("model output is not a [1,3,H,W] tensor");
	}

	float* src = NULL;
	msg = ort_status_msg(g_api->GetTensorMutableData(output, (void**)&src));
	if (msg != NULL) { g_api->ReleaseValue(output); return msg; }

	size_t count = (size_t)(dims[1] * dims[2] * dims[3]);
	float* copy = (float*)malloc(count * sizeof(float));
	if (copy == NULL) { g_api->ReleaseValue(output); return strdup("out of memory copying output tensor"); }
	memcpy(copy, src, count * sizeof(float));
	g_api->ReleaseValue(output);

	*out_data = copy;
	*out_h = dims[2];
	*out_w = dims[3];
	return NULL;
}

static void ort_release_session(OrtSession* sess) {
	g_api->ReleaseSession(sess);
}
*/
import "C"

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"go_upscaler/tensor"
)

var (
	envOnce sync.Once
	env     *C.OrtEnv
	envErr  error
)

// cErr consumes a C-owned error message.
func cErr(msg *C.char) error {
	defer C.free(unsafe.Pointer(msg))
	return errors.New(C.GoString(msg))
}

func initEnv() error {
	envOnce.Do(func() {
		if msg := C.ort_init(); msg != nil {
			envErr = cErr(msg)
			return
		}
		if msg := C.ort_create_env(&env); msg != nil {
			envErr = cErr(msg)
		}
	})
	return envErr
}

func runtimeDescription() string {
	if err := initEnv(); err != nil {
		return "onnxruntime (unavailable: " + err.Error() + ")"
	}
	return "onnxruntime " + C.GoString(C.ort_version())
}

func probeImpl(_ Config) error {
	return initEnv()
}

// sessionHandle owns one native session and its resolved tensor names.
type sessionHandle struct {
	mu         sync.Mutex
	sess       *C.OrtSession
	inputName  *C.char
	outputName *C.char
}

func newSessionImpl(modelPath string, cfg Config) (*sessionHandle, error) {
	if err := initEnv(); err != nil {
		return nil, err
	}

	cpath := C.CString(modelPath)
	defer C.free(unsafe.Pointer(cpath))

	var sess *C.OrtSession
	if msg := C.ort_create_session(env, cpath, C.int(cfg.IntraOpThreads), &sess); msg != nil {
		return nil, cErr(msg)
	}

	h := &sessionHandle{sess: sess}
	if msg := C.ort_io_name(sess, 0, &h.inputName); msg != nil {
		C.ort_release_session(sess)
		return nil, cErr(msg)
	}
	if msg := C.ort_io_name(sess, 1, &h.outputName); msg != nil {
		C.free(unsafe.Pointer(h.inputName))
		C.ort_release_session(sess)
		return nil, cErr(msg)
	}
	return h, nil
}

func runImpl(h *sessionHandle, data []float32, width, height int) ([]float32, int, int, error) {
	if h == nil || h.sess == nil {
		return nil, 0, 0, errors.New("session released")
	}
	if len(data) != tensor.Channels*width*height {
		return nil, 0, 0, fmt.Errorf("tensor length %d does not match %dx%d", len(data), width, height)
	}

	var outData *C.float
	var outH, outW C.int64_t
	msg := C.ort_run(h.sess, h.inputName, h.outputName,
		(*C.float)(unsafe.Pointer(&data[0])), C.int64_t(height), C.int64_t(width),
		&outData, &outH, &outW)
	if msg != nil {
		return nil, 0, 0, cErr(msg)
	}
	defer C.free(unsafe.Pointer(outData))

	w, hh := int(outW), int(outH)
	count := tensor.Channels * w * hh
	out := make([]float32, count)
	copy(out, unsafe.Slice((*float32)(unsafe.Pointer(outData)), count))
	return out, w, hh, nil
}

func closeImpl(h *sessionHandle) error {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sess == nil {
		return errors.New("session already released")
	}
	C.ort_release_session(h.sess)
	C.free(unsafe.Pointer(h.inputName))
	C.free(unsafe.Pointer(h.outputName))
	h.sess = nil
	return nil
}
