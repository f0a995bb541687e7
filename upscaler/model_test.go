package upscaler

import (
	"path/filepath"
	"strings"
	"testing"

	"go_waifu2x/core"
)

func TestParseModelType(t *testing.T) {
	tests := []struct {
		input string
		want  ModelType
	}{
		{"cunet", ModelCunet},
		{" CUNET ", ModelCunet},
		{"upconv7-anime", ModelUpconv7AnimeStyleArtRGB},
		{"upconv7-photo", ModelUpconv7Photo},
		{"models-upconv_7_photo", ModelUpconv7Photo},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseModelType(tt.input)
			if err != nil {
				t.Fatalf("ParseModelType(%q) error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseModelType(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}

	_, err := ParseModelType("esrgan")
	if code := core.GetErrorCode(err); code != core.ErrCodeInvalidModel {
		t.Errorf("ParseModelType(esrgan) code = %q, want %q", code, core.ErrCodeInvalidModel)
	}
}

func TestModelType_StringRoundTrip(t *testing.T) {
	for _, m := range AllModelTypes() {
		got, err := ParseModelType(m.String())
		if err != nil || got != m {
			t.Errorf("ParseModelType(%q) = %v, %v; want %v", m.String(), got, err, m)
		}
	}
}

func TestModelType_PrePadding(t *testing.T) {
	tests := []struct {
		model        ModelType
		noise, scale int
		want         int
	}{
		{ModelCunet, -1, 2, 18},
		{ModelCunet, 0, 1, 28},
		{ModelCunet, 3, 2, 18},
		{ModelCunet, 1, 4, 18},
		{ModelUpconv7AnimeStyleArtRGB, -1, 2, 7},
		{ModelUpconv7Photo, 2, 1, 7},
	}
	for _, tt := range tests {
		if got := tt.model.PrePadding(tt.noise, tt.scale); got != tt.want {
			t.Errorf("%v.PrePadding(%d, %d) = %d, want %d", tt.model, tt.noise, tt.scale, got, tt.want)
		}
	}
}

func TestModelType_TileSizeForBudget(t *testing.T) {
	tests := []struct {
		model  ModelType
		budget uint32
		want   int
	}{
		{ModelCunet, 4096, 400},
		{ModelCunet, 2600, 200},
		{ModelCunet, 741, 200},
		{ModelCunet, 740, 100},
		{ModelCunet, 250, 32},
		{ModelUpconv7Photo, 1901, 400},
		{ModelUpconv7Photo, 1900, 200},
		{ModelUpconv7AnimeStyleArtRGB, 551, 200},
		{ModelUpconv7AnimeStyleArtRGB, 191, 100},
		{ModelUpconv7AnimeStyleArtRGB, 190, 32},
	}
	for _, tt := range tests {
		if got := tt.model.TileSizeForBudget(tt.budget); got != tt.want {
			t.Errorf("%v.TileSizeForBudget(%d) = %d, want %d", tt.model, tt.budget, got, tt.want)
		}
	}
}

func TestModelPaths(t *testing.T) {
	tests := []struct {
		model        ModelType
		noise, scale int
		wantBase     string
	}{
		{ModelCunet, -1, 2, "models-cunet/scale2.0x_model"},
		{ModelCunet, 2, 1, "models-cunet/noise2_model"},
		{ModelCunet, 1, 2, "models-cunet/noise1_scale2.0x_model"},
		{ModelUpconv7Photo, 3, 8, "models-upconv_7_photo/noise3_scale2.0x_model"},
		{ModelUpconv7AnimeStyleArtRGB, -1, 4, "models-upconv_7_anime_style_art_rgb/scale2.0x_model"},
	}
	for _, tt := range tests {
		param, bin := ModelPaths("/srv/models", tt.model, tt.noise, tt.scale)
		wantBase := filepath.Join("/srv/models", filepath.FromSlash(tt.wantBase))
		if param != wantBase+".param" || bin != wantBase+".bin" {
			t.Errorf("ModelPaths(%v, %d, %d) = %s, %s; want base %s", tt.model, tt.noise, tt.scale, param, bin, wantBase)
		}
	}
}

func TestModelSet(t *testing.T) {
	cunet := ModelSet(ModelCunet, "https://example.com/models/")
	if cunet.Name != "models-cunet" {
		t.Errorf("Name = %q", cunet.Name)
	}
	if len(cunet.Files) != 18 {
		t.Errorf("cunet files = %d, want 18", len(cunet.Files))
	}

	photo := ModelSet(ModelUpconv7Photo, "https://example.com/models")
	if len(photo.Files) != 10 {
		t.Errorf("upconv7-photo files = %d, want 10", len(photo.Files))
	}

	for _, f := range cunet.Files {
		if !strings.HasPrefix(f.URL, "https://example.com/models/models-cunet/") {
			t.Errorf("URL = %q", f.URL)
		}
		if !strings.HasSuffix(f.URL, f.Path) {
			t.Errorf("URL %q does not end with path %q", f.URL, f.Path)
		}
	}
}

func TestPassesFor(t *testing.T) {
	tests := map[int]int{1: 1, 2: 1, 4: 2, 8: 3, 16: 4, 32: 5}
	for scale, want := range tests {
		if got := passesFor(scale); got != want {
			t.Errorf("passesFor(%d) = %d, want %d", scale, got, want)
		}
	}
}
