// Copyright (C) 2024 The RiverDAG Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenLogFile(t *testing.T) {
	tempDir := t.TempDir()

	config := LogFileConfig{
		Prefix:       "test_",
		LogDir:       tempDir,
		PipelineName: "test_pipeline",
		RequestID:    "12345678",
	}

	file, err := OpenLogFile(config)
	require.NoError(t, err)
	defer file.Close()

	assert.NotNil(t, file)
	assert.True(t, filepath.IsAbs(file.Name()))
	assert.Contains(t, file.Name(), "test_pipeline")
	assert.Contains(t, file.Name(), "test_")
	assert.Contains(t, file.Name(), "12345678")
}

func TestPrepareLogDirectory(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name     string
		config   LogFileConfig
		expected string
	}{
		{
			name:     "DefaultLogDir",
			config:   LogFileConfig{LogDir: tempDir, PipelineName: "test_pipeline"},
			expected: filepath.Join(tempDir, "test_pipeline"),
		},
		{
			name:     "CustomPipelineLogDir",
			config:   LogFileConfig{LogDir: tempDir, PipelineLogDir: filepath.Join(tempDir, "custom"), PipelineName: "test_pipeline"},
			expected: filepath.Join(tempDir, "custom", "test_pipeline"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir, err := prepareLogDirectory(tt.config)
			require.NoError(t, err)
			require.Equal(t, tt.expected, dir)

			info, err := os.Stat(dir)
			require.NoError(t, err)
			require.True(t, info.IsDir())
		})
	}
}

func TestOpenLogFileRejectsMissingPipelineName(t *testing.T) {
	_, err := OpenLogFile(LogFileConfig{LogDir: t.TempDir()})
	require.Error(t, err)
}

func TestOpenLogFileRejectsMissingDir(t *testing.T) {
	_, err := OpenLogFile(LogFileConfig{PipelineName: "x"})
	require.Error(t, err)
}

func TestSafeNameSanitizesUnsafeCharacters(t *testing.T) {
	require.Equal(t, "a_b_c", safeName("a/b c"))
	require.Equal(t, "_", safeName(""))
}

func TestTruncStringTruncates(t *testing.T) {
	require.Equal(t, "abcdefgh", truncString("abcdefghijklmnop", 8))
	require.Equal(t, "abc", truncString("abc", 8))
}
