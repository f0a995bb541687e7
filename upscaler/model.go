package upscaler

import (
	"fmt"
	"path/filepath"
	"strings"

	"go_waifu2x/core"
)

// ModelType selects a waifu2x network.
type ModelType int

const (
	ModelCunet ModelType = iota
	ModelUpconv7AnimeStyleArtRGB
	ModelUpconv7Photo
)

// AllModelTypes lists the supported networks.
func AllModelTypes() []ModelType {
	return []ModelType{ModelCunet, ModelUpconv7AnimeStyleArtRGB, ModelUpconv7Photo}
}

// String returns the name ParseModelType accepts.
func (m ModelType) String() string {
	switch m {
	case ModelCunet:
		return "cunet"
	case ModelUpconv7AnimeStyleArtRGB:
		return "upconv7-anime"
	case ModelUpconv7Photo:
		return "upconv7-photo"
	}
	return fmt.Sprintf("ModelType(%d)", int(m))
}

// ParseModelType maps a model name to its type. Directory names such as
// "models-cunet" are accepted too.
func ParseModelType(name string) (ModelType, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, m := range AllModelTypes() {
		if n == m.String() || n == m.Dir() {
			return m, nil
		}
	}
	return 0, core.ErrInvalidModel(name)
}

// Dir is the model directory name under the models root.
func (m ModelType) Dir() string {
	switch m {
	case ModelUpconv7AnimeStyleArtRGB:
		return "models-upconv_7_anime_style_art_rgb"
	case ModelUpconv7Photo:
		return "models-upconv_7_photo"
	default:
		return "models-cunet"
	}
}

// PrePadding is the tile overlap the network needs.
func (m ModelType) PrePadding(noise, scale int) int {
	if m != ModelCunet {
		return 7
	}
	if noise != -1 && scale == 1 {
		return 28
	}
	return 18
}

// TileSizeForBudget picks the largest tile that fits a device heap
// budget given in MB.
func (m ModelType) TileSizeForBudget(heapBudgetMB uint32) int {
	thresholds := [3]uint32{2600, 740, 250}
	if m != ModelCunet {
		thresholds = [3]uint32{1900, 550, 190}
	}
	switch {
	case heapBudgetMB > thresholds[0]:
		return 400
	case heapBudgetMB > thresholds[1]:
		return 200
	case heapBudgetMB > thresholds[2]:
		return 100
	default:
		return 32
	}
}

// modelFileBase names the network file for a noise/scale pair, without extension.
func modelFileBase(noise, scale int) string {
	switch {
	case noise == -1:
		return "scale2.0x_model"
	case scale == 1:
		return fmt.Sprintf("noise%d_model", noise)
	default:
		return fmt.Sprintf("noise%d_scale2.0x_model", noise)
	}
}

// ModelPaths returns the param and bin files for m under modelsDir.
func ModelPaths(modelsDir string, m ModelType, noise, scale int) (paramPath, binPath string) {
	base := filepath.Join(modelsDir, m.Dir(), modelFileBase(noise, scale))
	return base + ".param", base + ".bin"
}

// ModelSet lists the files of m published under baseURL, for
// core.ModelManager. Only cunet ships the scale-1 denoise networks.
func ModelSet(m ModelType, baseURL string) core.ModelSet {
	bases := []string{modelFileBase(-1, 2)}
	for noise := 0; noise <= 3; noise++ {
		bases = append(bases, modelFileBase(noise, 2))
		if m == ModelCunet {
			bases = append(bases, modelFileBase(noise, 1))
		}
	}

	set := core.ModelSet{Name: m.Dir()}
	baseURL = strings.TrimRight(baseURL, "/")
	for _, b := range bases {
		for _, ext := range []string{".param", ".bin"} {
			rel := m.Dir() + "/" + b + ext
			set.Files = append(set.Files, core.ModelFile{Path: rel, URL: baseURL + "/" + rel})
		}
	}
	return set
}
