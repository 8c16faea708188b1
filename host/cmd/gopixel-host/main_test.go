package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopixel/core"
	"gopixel/host/config"
)

func TestParseColor(t *testing.T) {
	tests := []struct {
		in      string
		r, g, b byte
		wantErr bool
	}{
		{"", 0, 0, 0, false},
		{"ff8000", 0xFF, 0x80, 0x00, false},
		{"#0a0b0c", 10, 11, 12, false},
		{"1, 2,3", 1, 2, 3, false},
		{"256,0,0", 0, 0, 0, true},
		{"ff80", 0, 0, 0, true},
		{"red", 0, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			r, g, b, err := parseColor(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []byte{tt.r, tt.g, tt.b}, []byte{r, g, b})
		})
	}
}

func TestFrameBuild(t *testing.T) {
	sc := config.StripConfig{Count: 2, Order: core.OrderGRB}
	buf, err := (&frameFlags{color: "102030"}).build(&sc)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x20, 0x10, 0x30, 0x20, 0x10, 0x30}, buf)

	sc.Order = core.OrderRGB
	buf, err = (&frameFlags{color: "102030"}).build(&sc)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x10, 0x20, 0x30, 0x10, 0x20, 0x30}, buf)

	buf, err = (&frameFlags{hex: "aabbcc dd"}).build(&sc)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC, 0xDD}, buf)
	assert.Equal(t, 2, sc.Count)

	assert.Equal(t, 4, sc.Bytes(), "a raw frame keeps its length")

	dual := config.StripConfig{Pin: "a", PinB: "b", Count: 1}
	buf, err = (&frameFlags{}).build(&dual)
	require.NoError(t, err)
	assert.Len(t, buf, 6)
	_, err = (&frameFlags{hex: "aabbcc"}).build(&dual)
	assert.ErrorIs(t, err, core.ErrUnevenChannels)

	buf, err = (&frameFlags{hex: "11223344"}).build(&dual)
	require.NoError(t, err)
	assert.Equal(t, 1, dual.Count)
	assert.Equal(t, len(buf), dual.Bytes())

	_, err = (&frameFlags{hex: "aa", color: "000000"}).build(&sc)
	assert.Error(t, err)
	_, err = (&frameFlags{hex: "zz"}).build(&sc)
	assert.Error(t, err)
}

func TestStripFlagsResolve(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "strips.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
device = "/dev/ttyUSB3"
[strips.shelf]
pin = "GPIO18"
variant = "ws2811"
count = 10
`), 0o644))

	var sf stripFlags
	cmd := &cobra.Command{Use: "x"}
	sf.register(cmd.Flags(), "test")
	require.NoError(t, cmd.Flags().Parse([]string{"--count", "4"}))

	configPath, stripName = path, "shelf"
	t.Cleanup(func() { configPath, stripName = "", "" })
	file, err := loadFile()
	require.NoError(t, err)

	sc, err := sf.resolve(cmd, file)
	require.NoError(t, err)
	assert.Equal(t, "shelf", sc.Name)
	assert.Equal(t, "GPIO18", sc.Pin)
	assert.Equal(t, core.VariantWS2811, sc.Variant)
	assert.Equal(t, 4, sc.Count, "flag overrides file")
	assert.Equal(t, config.DriverBitbang, sc.Driver)
	assert.Equal(t, "/dev/ttyUSB3", sf.deviceName(file))

	sf.device = "/dev/ttyACM9"
	assert.Equal(t, "/dev/ttyACM9", sf.deviceName(file))

	stripName = "missing"
	_, err = sf.resolve(cmd, file)
	assert.Error(t, err)
}

func TestStripFlagsWithoutConfig(t *testing.T) {
	var sf stripFlags
	cmd := &cobra.Command{Use: "x"}
	sf.register(cmd.Flags(), "test")
	require.NoError(t, cmd.Flags().Parse([]string{"--pin", "GPIO5", "--order", "rgb", "-n", "3"}))

	file, err := loadFile()
	require.NoError(t, err)
	sc, err := sf.resolve(cmd, file)
	require.NoError(t, err)
	assert.Equal(t, core.OrderRGB, sc.Order)
	assert.Equal(t, core.VariantWS2812, sc.Variant)
	assert.Equal(t, 9, sc.Bytes())
	assert.Equal(t, defaultDevice, sf.deviceName(file))
}

func TestProfileCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"profile", "--clock", "150MHz", "--variant", "ws2812"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		profileVariant = ""
	})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "ws2812")
	assert.Contains(t, out.String(), "45 (300ns)")
	assert.Contains(t, out.String(), "188 (1253ns)")

	rootCmd.SetArgs([]string{"profile", "--clock", "1MHz"})
	assert.ErrorIs(t, rootCmd.Execute(), core.ErrClockFrequency)
}
