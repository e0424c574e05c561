package catalog

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

//go:embed catalog.cue schemas/*.schema.json
var embedded embed.FS

// Default compiles the catalog built into the binary.
func Default() (*Catalog, error) {
	src, err := embedded.ReadFile("catalog.cue")
	if err != nil {
		return nil, configError(fmt.Errorf("read embedded catalog: %w", err))
	}
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename("catalog.cue"))
	return Compile(v, embedded)
}

// LoadDir loads every CUE file in dir as one instance and compiles it.
// Schema paths in the catalog are resolved relative to dir.
func LoadDir(dir string) (*Catalog, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &ConfigError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("catalog directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &ConfigError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return nil, configError(err)
	}
	if len(matches) == 0 {
		return nil, &ConfigError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &ConfigError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &ConfigError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	ctx := cuecontext.New()
	v := ctx.BuildInstance(inst)
	return Compile(v, os.DirFS(dir))
}
