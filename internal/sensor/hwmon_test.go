package sensor_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shini4i/ocypus-lcd/internal/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeChip lays out a fake hwmon chip directory with a name file and the
// given channel files.
func writeChip(t *testing.T, root, dir, name string, files map[string]string) {
	t.Helper()
	chipDir := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(chipDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(chipDir, "name"), []byte(name+"\n"), 0o644))
	for file, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(chipDir, file), []byte(content), 0o644))
	}
}

func TestReader_Read(t *testing.T) {
	root := t.TempDir()
	writeChip(t, root, "hwmon0", "k10temp", map[string]string{
		"temp1_input": "47300\n",
		"temp1_label": "Tctl\n",
	})

	reader := sensor.NewReader("k10temp", sensor.WithRoot(root))
	reading, err := reader.Read()
	require.NoError(t, err)

	assert.Equal(t, "k10temp", reading.Chip)
	assert.Equal(t, "Tctl", reading.Label)
	assert.InDelta(t, 47.3, reading.Celsius, 0.001)
}

func TestReader_Read_MatchIsCaseInsensitiveSubstring(t *testing.T) {
	root := t.TempDir()
	writeChip(t, root, "hwmon0", "k10temp", map[string]string{
		"temp1_input": "51000\n",
	})

	reader := sensor.NewReader("K10", sensor.WithRoot(root))
	reading, err := reader.Read()
	require.NoError(t, err)
	assert.Equal(t, "k10temp", reading.Chip)
}

func TestReader_Read_SkipsNonMatchingChips(t *testing.T) {
	root := t.TempDir()
	writeChip(t, root, "hwmon0", "nvme", map[string]string{
		"temp1_input": "35000\n",
	})
	writeChip(t, root, "hwmon1", "k10temp", map[string]string{
		"temp1_input": "62500\n",
	})

	reader := sensor.NewReader("k10temp", sensor.WithRoot(root))
	reading, err := reader.Read()
	require.NoError(t, err)

	assert.Equal(t, "k10temp", reading.Chip)
	assert.InDelta(t, 62.5, reading.Celsius, 0.001)
}

func TestReader_Read_NoMatch(t *testing.T) {
	root := t.TempDir()
	writeChip(t, root, "hwmon0", "nvme", map[string]string{
		"temp1_input": "35000\n",
	})

	reader := sensor.NewReader("coretemp", sensor.WithRoot(root))
	_, err := reader.Read()
	assert.ErrorIs(t, err, sensor.ErrUnavailable)
}

func TestReader_Read_ChipWithoutChannels(t *testing.T) {
	root := t.TempDir()
	writeChip(t, root, "hwmon0", "k10temp", nil)

	reader := sensor.NewReader("k10temp", sensor.WithRoot(root))
	_, err := reader.Read()
	assert.ErrorIs(t, err, sensor.ErrUnavailable)
}

func TestReader_Read_MissingRoot(t *testing.T) {
	reader := sensor.NewReader("k10temp", sensor.WithRoot(filepath.Join(t.TempDir(), "absent")))
	_, err := reader.Read()
	assert.ErrorIs(t, err, sensor.ErrUnavailable)
}

func TestReader_Read_LabelFallsBackToChannelStem(t *testing.T) {
	root := t.TempDir()
	writeChip(t, root, "hwmon0", "k10temp", map[string]string{
		"temp1_input": "40000\n",
	})

	reader := sensor.NewReader("k10temp", sensor.WithRoot(root))
	reading, err := reader.Read()
	require.NoError(t, err)
	assert.Equal(t, "temp1", reading.Label)
}

func TestReader_Read_SkipsMalformedChannel(t *testing.T) {
	root := t.TempDir()
	writeChip(t, root, "hwmon0", "k10temp", map[string]string{
		"temp1_input": "not-a-number\n",
		"temp2_input": "52000\n",
		"temp2_label": "Tccd1\n",
	})

	reader := sensor.NewReader("k10temp", sensor.WithRoot(root))
	reading, err := reader.Read()
	require.NoError(t, err)

	assert.Equal(t, "Tccd1", reading.Label)
	assert.InDelta(t, 52.0, reading.Celsius, 0.001)
}

func TestReader_Read_ChannelsOrderedNumerically(t *testing.T) {
	root := t.TempDir()
	writeChip(t, root, "hwmon0", "k10temp", map[string]string{
		"temp10_input": "99000\n",
		"temp2_input":  "44000\n",
	})

	reader := sensor.NewReader("k10temp", sensor.WithRoot(root))
	reading, err := reader.Read()
	require.NoError(t, err)

	assert.Equal(t, "temp2", reading.Label)
	assert.InDelta(t, 44.0, reading.Celsius, 0.001)
}

func TestReader_Read_IgnoresStrayFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray"), []byte("x"), 0o644))
	writeChip(t, root, "hwmon1", "k10temp", map[string]string{
		"temp1_input": "45000\n",
	})

	reader := sensor.NewReader("k10temp", sensor.WithRoot(root))
	reading, err := reader.Read()
	require.NoError(t, err)
	assert.Equal(t, "k10temp", reading.Chip)
}

func TestReader_List(t *testing.T) {
	root := t.TempDir()
	writeChip(t, root, "hwmon0", "nvme", map[string]string{
		"temp1_input": "35000\n",
		"temp1_label": "Composite\n",
	})
	writeChip(t, root, "hwmon1", "k10temp", map[string]string{
		"temp1_input": "62500\n",
	})
	// A chip without channels is listed nowhere
	writeChip(t, root, "hwmon2", "acpitz", nil)

	reader := sensor.NewReader("", sensor.WithRoot(root))
	readings, err := reader.List()
	require.NoError(t, err)
	require.Len(t, readings, 2)

	assert.Equal(t, "nvme", readings[0].Chip)
	assert.Equal(t, "Composite", readings[0].Label)
	assert.InDelta(t, 35.0, readings[0].Celsius, 0.001)
	assert.Equal(t, "k10temp", readings[1].Chip)
}
