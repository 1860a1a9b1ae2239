package hal

import "testing"

func TestRGB565(t *testing.T) {
	tests := []struct {
		r, g, b uint8
		want    uint16
	}{
		{0, 0, 0, 0x0000},
		{0xFF, 0xFF, 0xFF, 0xFFFF},
		{0xFF, 0, 0, 0xF800},
		{0, 0xFF, 0, 0x07E0},
		{0, 0, 0xFF, 0x001F},
	}
	for _, tt := range tests {
		if got := RGB565(tt.r, tt.g, tt.b); got != tt.want {
			t.Fatalf("RGB565(%d,%d,%d) = %#04x, want %#04x", tt.r, tt.g, tt.b, got, tt.want)
		}
		r, g, b := RGB888(tt.want)
		if r != tt.r || g != tt.g || b != tt.b {
			t.Fatalf("RGB888(%#04x) = %d,%d,%d, want %d,%d,%d", tt.want, r, g, b, tt.r, tt.g, tt.b)
		}
	}
}

func TestExpandRGB565(t *testing.T) {
	src := []byte{0x00, 0xF8, 0x1F, 0x00}
	dst := make([]byte, 8)
	expandRGB565(dst, src)
	want := []byte{0xFF, 0, 0, 0xFF, 0, 0, 0xFF, 0xFF}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("expandRGB565() = %v, want %v", dst, want)
		}
	}
}
