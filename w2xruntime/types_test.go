package w2xruntime

import (
	"errors"
	"testing"
)

func TestClampScale(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{1, 1},
		{2, 2},
		{3, 2},
		{4, 2},
		{32, 2},
		{0, 0},
	}
	for _, tt := range tests {
		if got := ClampScale(tt.in); got != tt.want {
			t.Errorf("ClampScale(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"cpu device", func(c *Config) { c.GPUID = CPUDeviceID }, false},
		{"scale 4 clamps", func(c *Config) { c.Scale = 4 }, false},
		{"no denoise", func(c *Config) { c.Noise = -1 }, false},
		{"gpu below cpu", func(c *Config) { c.GPUID = -2 }, true},
		{"zero threads", func(c *Config) { c.NumThreads = 0 }, true},
		{"noise too high", func(c *Config) { c.Noise = 4 }, true},
		{"scale zero", func(c *Config) { c.Scale = 0 }, true},
		{"tile too small", func(c *Config) { c.TileSize = 16 }, true},
		{"negative prepadding", func(c *Config) { c.PrePadding = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestPixelBufferValidate(t *testing.T) {
	tests := []struct {
		name    string
		buf     PixelBuffer
		wantErr bool
	}{
		{"rgb", PixelBuffer{Data: make([]byte, 2*3*3), Width: 2, Height: 3, Channels: 3}, false},
		{"gray", PixelBuffer{Data: make([]byte, 4), Width: 2, Height: 2, Channels: 1}, false},
		{"short data", PixelBuffer{Data: make([]byte, 5), Width: 2, Height: 3, Channels: 1}, true},
		{"long data", PixelBuffer{Data: make([]byte, 7), Width: 2, Height: 3, Channels: 1}, true},
		{"zero width", PixelBuffer{Width: 0, Height: 3, Channels: 1}, true},
		{"five channels", PixelBuffer{Data: make([]byte, 5), Width: 1, Height: 1, Channels: 5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.buf.Validate()
			if tt.wantErr != (err != nil) {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidBuffer) {
				t.Errorf("Validate() = %v, want ErrInvalidBuffer", err)
			}
		})
	}
}

func TestNewPixelBuffer(t *testing.T) {
	b, err := NewPixelBuffer(4, 5, 3)
	if err != nil {
		t.Fatalf("NewPixelBuffer() error: %v", err)
	}
	if len(b.Data) != 60 || b.Len() != 60 {
		t.Errorf("len = %d, Len() = %d, want 60", len(b.Data), b.Len())
	}
	if _, err := NewPixelBuffer(4, 5, 0); !errors.Is(err, ErrInvalidBuffer) {
		t.Errorf("zero channels: got %v, want ErrInvalidBuffer", err)
	}
}
