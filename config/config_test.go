/*
Copyright (c) The llsec Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidateRejectsNoKeyMode(t *testing.T) {
	c := Default()
	c.WithPairwiseKeys = false
	c.WithGroupKeys = false
	assert.ErrorIs(t, c.Validate(), errNoKeyMode)
}

func TestValidateRejectsBadKeyLen(t *testing.T) {
	c := Default()
	c.KeyLen = 32
	assert.ErrorIs(t, c.Validate(), errKeyLen)
}

func TestValidateRejectsSecLevelOutOfBounds(t *testing.T) {
	c := Default()
	c.UnicastSecLevel = 8
	assert.ErrorIs(t, c.Validate(), errSecLevelOutOfBounds)
}

func TestValidateRejectsZeroWakeInterval(t *testing.T) {
	c := Default()
	c.WakeInterval = 0
	assert.ErrorIs(t, c.Validate(), errWakeInterval)
}

func TestValidateRequiresUpdateThresholdWithSecurePhaseLock(t *testing.T) {
	c := Default()
	c.WithSecurePhaseLock = true
	c.UpdateThreshold = 0
	assert.ErrorIs(t, c.Validate(), errUpdateThreshold)
}

func TestLoadWriteRoundTrip(t *testing.T) {
	c := Default()
	c.WakeInterval = 250 * time.Millisecond
	c.MaxNeighbors = 42

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, c.Write(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, c.WakeInterval, loaded.WakeInterval)
	assert.Equal(t, c.MaxNeighbors, loaded.MaxNeighbors)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("key_len: 32\n"), 0o644))

	_, err := Load(path)
	assert.ErrorIs(t, err, errKeyLen)
}
