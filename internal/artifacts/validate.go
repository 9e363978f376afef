package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// weightFileNames are the model-weight files a checkpoint directory may
// carry, in the serialization conventions of the training stack.
var weightFileNames = []string{
	"model.safetensors",
	"pytorch_model.bin",
	"tf_model.h5",
	"model.ckpt.index",
	"flax_model.msgpack",
}

// configFileName is the companion config accepted in place of weights.
// Sharded checkpoints list their weight files in an index the config
// sits next to, so config presence is the more general signal.
const configFileName = "config.json"

// ValidateCheckpoint checks that dir holds a loadable model checkpoint:
// at least one known weight file or a companion config file. Returns
// nil when valid.
func ValidateCheckpoint(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("checkpoint %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("checkpoint %s: not a directory", dir)
	}

	for _, name := range weightFileNames {
		if fileExists(filepath.Join(dir, name)) {
			return nil
		}
	}
	if fileExists(filepath.Join(dir, configFileName)) {
		return nil
	}

	return fmt.Errorf("checkpoint %s: no model weights (%s) and no %s",
		dir, strings.Join(weightFileNames, ", "), configFileName)
}

// isWeightFile reports whether name (a base name) is a known
// model-weight file.
func isWeightFile(name string) bool {
	for _, w := range weightFileNames {
		if name == w {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
