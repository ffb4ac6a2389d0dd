// Package promptgraph implements the Prompt Preprocessor: it walks a
// submitted computation graph, rewrites URL/base64 inputs on a fixed,
// enumerated set of node class_types, downloads referenced models and
// media through the cache and blob store, stamps output-saver nodes with
// an isolated filename prefix, and reports whether the graph has a
// saver.
package promptgraph

// modelLoadClasses is the closed set of class_types whose inputs name a
// model file on disk. Every field listed under a class_type is examined;
// if its value is a URL, it's downloaded into the model directory
// appropriate for that type.
var modelLoadClasses = map[string][]string{
	"CheckpointLoaderSimple": {"ckpt_name"},
	"CheckpointLoader":       {"ckpt_name", "config_name"},
	"LoraLoader":             {"lora_name"},
	"LoraLoaderModelOnly":    {"lora_name"},
	"VAELoader":              {"vae_name"},
	"ControlNetLoader":       {"control_net_name"},
	"DiffControlNetLoader":   {"control_net_name"},
	"UNETLoader":             {"unet_name"},
	"CLIPLoader":             {"clip_name"},
	"DualCLIPLoader":         {"clip_name1", "clip_name2"},
	"CLIPVisionLoader":       {"clip_name"},
	"StyleModelLoader":       {"style_model_name"},
	"GLIGENLoader":           {"gligen_name"},
	"UpscaleModelLoader":     {"model_name"},
	"unCLIPCheckpointLoader": {"ckpt_name"},
	"DiffusersLoader":        {"model_path"},
}

// modelTypeForClass maps a model-loading class_type to the model type key
// used to look up its directory in the Catalog/config.ModelDirs.
var modelTypeForClass = map[string]string{
	"CheckpointLoaderSimple": "checkpoints",
	"CheckpointLoader":       "checkpoints",
	"LoraLoader":             "loras",
	"LoraLoaderModelOnly":    "loras",
	"VAELoader":              "vae",
	"ControlNetLoader":       "controlnet",
	"DiffControlNetLoader":  "controlnet",
	"UNETLoader":             "unet",
	"CLIPLoader":             "clip",
	"DualCLIPLoader":         "clip",
	"CLIPVisionLoader":       "clip_vision",
	"StyleModelLoader":       "style_models",
	"GLIGENLoader":           "gligen",
	"UpscaleModelLoader":     "upscale_models",
	"unCLIPCheckpointLoader": "checkpoints",
	"DiffusersLoader":        "diffusers",
}

// mediaLoadClasses is the closed set of image/video/audio/directory
// loader class_types and the input field(s) they carry media references
// in. LoadImagesFromDir's "directory" field accepts a []any of strings
// rather than a single string (see isDirectoryLoader).
var mediaLoadClasses = map[string][]string{
	"LoadImage":         {"image"},
	"LoadImageMask":     {"image"},
	"LoadVideo":         {"video"},
	"LoadAudio":         {"audio"},
	"LoadImagesFromDir": {"directory"},
}

// isDirectoryLoader reports whether class_type's named input is a list of
// media references rather than a single one.
func isDirectoryLoader(classType string) bool {
	return classType == "LoadImagesFromDir"
}
