package registry

// Built-in model catalog. Scale factors and window sizes come from the
// published model cards; window-aligned architectures (Swin2SR, SwinIR)
// require tile edges padded to a multiple of 8.

const (
	// defaultMaxTileEdge bounds tile size for convolutional models.
	defaultMaxTileEdge = 512

	// swinMaxTileEdge is lower because attention memory grows
	// quadratically with the window count.
	swinMaxTileEdge = 256
)

var builtinCatalog = []ModelDescriptor{
	{
		ID:          "swin2sr-realworld-4x",
		DisplayName: "Swin2SR Real-world photos (4x)",
		Kind:        KindUpscale,
		ScaleFactor: 4,
		URL:         "https://huggingface.co/Xenova/swin2SR-realworld-sr-x4-64-bsrgan-psnr/resolve/main/onnx/model.onnx",
		Filename:    "swin2sr-realworld-sr-x4-64-bsrgan-psnr.onnx",
		WindowSize:  8,
		MaxTileEdge: swinMaxTileEdge,
		SizeBytes:   48 * 1024 * 1024,
	},
	{
		ID:          "swin2sr-classical-4x",
		DisplayName: "Swin2SR Clean images (4x)",
		Kind:        KindUpscale,
		ScaleFactor: 4,
		URL:         "https://huggingface.co/Xenova/swin2SR-classical-sr-x4-64/resolve/main/onnx/model.onnx",
		Filename:    "swin2sr-classical-sr-x4-64.onnx",
		WindowSize:  8,
		MaxTileEdge: swinMaxTileEdge,
		SizeBytes:   48 * 1024 * 1024,
	},
	{
		ID:          "swin2sr-lightweight-2x",
		DisplayName: "Swin2SR Lightweight (2x)",
		Kind:        KindUpscale,
		ScaleFactor: 2,
		URL:         "https://huggingface.co/Xenova/swin2SR-lightweight-x2-64/resolve/main/onnx/model.onnx",
		Filename:    "swin2sr-lightweight-x2-64.onnx",
		WindowSize:  8,
		MaxTileEdge: swinMaxTileEdge,
		SizeBytes:   4 * 1024 * 1024,
	},
	{
		ID:          "swin2sr-compressed-4x",
		DisplayName: "Swin2SR Compressed/JPEG (4x)",
		Kind:        KindUpscale,
		ScaleFactor: 4,
		URL:         "https://huggingface.co/Xenova/swin2SR-compressed-sr-x4-48/resolve/main/onnx/model.onnx",
		Filename:    "swin2sr-compressed-sr-x4-48.onnx",
		WindowSize:  8,
		MaxTileEdge: swinMaxTileEdge,
		SizeBytes:   48 * 1024 * 1024,
	},
	{
		ID:          "apisr-rrdb-2x",
		DisplayName: "APISR RRDB GAN Anime (2x)",
		Kind:        KindUpscale,
		ScaleFactor: 2,
		URL:         "https://huggingface.co/Xenova/2x_APISR_RRDB_GAN_generator-onnx/resolve/main/onnx/model.onnx",
		Filename:    "2x-apisr-rrdb-gan-generator.onnx",
		WindowSize:  1,
		MaxTileEdge: defaultMaxTileEdge,
		SizeBytes:   18 * 1024 * 1024,
	},
	{
		ID:          "apisr-grl-4x",
		DisplayName: "APISR GRL GAN Anime (4x)",
		Kind:        KindUpscale,
		ScaleFactor: 4,
		URL:         "https://huggingface.co/Xenova/4x_APISR_GRL_GAN_generator-onnx/resolve/main/onnx/model.onnx",
		Filename:    "4x-apisr-grl-gan-generator.onnx",
		WindowSize:  1,
		MaxTileEdge: defaultMaxTileEdge,
		SizeBytes:   4 * 1024 * 1024,
	},
	{
		ID:          "swinir-noise",
		DisplayName: "SwinIR Noise reduction",
		Kind:        KindDenoise,
		ScaleFactor: 1,
		URL:         "https://huggingface.co/TensorStack/Upscale-amuse/resolve/main/SwinIR-Noise/model.onnx",
		Filename:    "swinir-noise.onnx",
		WindowSize:  8,
		MaxTileEdge: swinMaxTileEdge,
		SizeBytes:   45 * 1024 * 1024,
	},
	{
		ID:          "swinir-bsrgan-4x",
		DisplayName: "SwinIR Real degradations (4x)",
		Kind:        KindEnhance,
		ScaleFactor: 4,
		URL:         "https://huggingface.co/TensorStack/Upscale-amuse/resolve/main/SwinIR-BSRGAN-4x/model.onnx",
		Filename:    "swinir-bsrgan-4x.onnx",
		WindowSize:  8,
		MaxTileEdge: swinMaxTileEdge,
		SizeBytes:   45 * 1024 * 1024,
	},
	{
		ID:          "bsrgan-2x",
		DisplayName: "BSRGAN Blind SR (2x)",
		Kind:        KindEnhance,
		ScaleFactor: 2,
		URL:         "https://huggingface.co/TensorStack/Upscale-amuse/resolve/main/BSRGAN-2x/model.onnx",
		Filename:    "bsrgan-2x.onnx",
		WindowSize:  1,
		MaxTileEdge: defaultMaxTileEdge,
		SizeBytes:   65 * 1024 * 1024,
	},
	{
		ID:          "realesrgan-2x",
		DisplayName: "RealESRGAN Real-world SR (2x)",
		Kind:        KindEnhance,
		ScaleFactor: 2,
		URL:         "https://huggingface.co/TensorStack/Upscale-amuse/resolve/main/RealESRGAN-2x/model.onnx",
		Filename:    "realesrgan-2x.onnx",
		WindowSize:  1,
		MaxTileEdge: defaultMaxTileEdge,
		SizeBytes:   65 * 1024 * 1024,
	},
	{
		ID:          "realesrgan-4x",
		DisplayName: "RealESRGAN Real-world SR (4x)",
		Kind:        KindEnhance,
		ScaleFactor: 4,
		URL:         "https://huggingface.co/TensorStack/Upscale-amuse/resolve/main/RealESRGAN-4x/model.onnx",
		Filename:    "realesrgan-4x.onnx",
		WindowSize:  1,
		MaxTileEdge: defaultMaxTileEdge,
		SizeBytes:   65 * 1024 * 1024,
	},
	{
		ID:          "realesr-general-4x",
		DisplayName: "RealESR General purpose (4x)",
		Kind:        KindEnhance,
		ScaleFactor: 4,
		URL:         "https://huggingface.co/TensorStack/Upscale-amuse/resolve/main/RealESR-General-4x/model.onnx",
		Filename:    "realesr-general-4x.onnx",
		WindowSize:  1,
		MaxTileEdge: defaultMaxTileEdge,
		SizeBytes:   17 * 1024 * 1024,
	},
	{
		ID:          "swin2sr-ts-classical-2x",
		DisplayName: "Swin2SR Classical SR (2x)",
		Kind:        KindUpscale,
		ScaleFactor: 2,
		URL:         "https://huggingface.co/TensorStack/Upscale-amuse/resolve/main/Swin2SR-Classical-2x/model.onnx",
		Filename:    "swin2sr-ts-classical-2x.onnx",
		WindowSize:  8,
		MaxTileEdge: swinMaxTileEdge,
		SizeBytes:   48 * 1024 * 1024,
	},
	{
		ID:          "swin2sr-ts-classical-4x",
		DisplayName: "Swin2SR Classical SR (4x)",
		Kind:        KindUpscale,
		ScaleFactor: 4,
		URL:         "https://huggingface.co/TensorStack/Upscale-amuse/resolve/main/Swin2SR-Classical-4x/model.onnx",
		Filename:    "swin2sr-ts-classical-4x.onnx",
		WindowSize:  8,
		MaxTileEdge: swinMaxTileEdge,
		SizeBytes:   48 * 1024 * 1024,
	},
	{
		ID:          "ultrasharp-4x",
		DisplayName: "UltraSharp details (4x)",
		Kind:        KindEnhance,
		ScaleFactor: 4,
		URL:         "https://huggingface.co/TensorStack/Upscale-amuse/resolve/main/UltraSharp-4x/model.onnx",
		Filename:    "ultrasharp-4x.onnx",
		WindowSize:  1,
		MaxTileEdge: defaultMaxTileEdge,
		SizeBytes:   67 * 1024 * 1024,
	},
	{
		ID:          "ultramix-smooth-4x",
		DisplayName: "UltraMix Smooth details (4x)",
		Kind:        KindEnhance,
		ScaleFactor: 4,
		URL:         "https://huggingface.co/TensorStack/Upscale-amuse/resolve/main/UltraMix-Smooth-4x/model.onnx",
		Filename:    "ultramix-smooth-4x.onnx",
		WindowSize:  1,
		MaxTileEdge: defaultMaxTileEdge,
		SizeBytes:   67 * 1024 * 1024,
	},
}

// Builtin returns a registry containing only the built-in catalog.
func Builtin() *Registry {
	// The built-in catalog is validated by tests; a construction error
	// here is a programming bug.
	r, err := New(builtinCatalog)
	if err != nil {
		panic(err)
	}
	return r
}
