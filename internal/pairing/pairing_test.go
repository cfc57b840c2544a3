package pairing

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	override, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, override)
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pairing.json"), []byte("{not json"), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestLoadRejectsOutOfRangeProductName(t *testing.T) {
	dir := t.TempDir()
	content := `{"productName": ""}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pairing.json"), []byte(content), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestLoadOnlyAppliesPasscodeAndDiscriminatorTogether(t *testing.T) {
	dir := t.TempDir()
	content := `{"passcode": 12345678}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pairing.json"), []byte(content), 0o644))

	override, err := Load(dir)
	require.NoError(t, err)
	require.NotNil(t, override)
	assert.Nil(t, override.Passcode)
	assert.Nil(t, override.Discriminator)
}

func TestLoadAppliesPasscodeAndDiscriminatorPair(t *testing.T) {
	dir := t.TempDir()
	content := `{"passcode": 12345678, "discriminator": 256}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pairing.json"), []byte(content), 0o644))

	override, err := Load(dir)
	require.NoError(t, err)
	require.NotNil(t, override)
	require.NotNil(t, override.Passcode)
	assert.EqualValues(t, 12345678, *override.Passcode)
	require.NotNil(t, override.Discriminator)
	assert.EqualValues(t, 256, *override.Discriminator)
}

func TestLoadRejectsDiscriminatorOutOfRange(t *testing.T) {
	dir := t.TempDir()
	content := `{"passcode": 12345678, "discriminator": 4096}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pairing.json"), []byte(content), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestLoadDecodesCertificationOnlyWhenAllFourBlobsPresent(t *testing.T) {
	dir := t.TempDir()
	content := `{"privateKey": "aa", "certificate": "bb"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pairing.json"), []byte(content), 0o644))

	override, err := Load(dir)
	require.NoError(t, err)
	require.NotNil(t, override)
	assert.Nil(t, override.Certification)
}

func TestLoadDecodesFullCertificationBundle(t *testing.T) {
	dir := t.TempDir()
	hexField := func(b string) string { return hex.EncodeToString([]byte(b)) }
	content := `{
		"privateKey": "` + hexField("key") + `",
		"certificate": "` + hexField("cert") + `",
		"intermediateCertificate": "` + hexField("inter") + `",
		"declaration": "` + hexField("decl") + `"
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pairing.json"), []byte(content), 0o644))

	override, err := Load(dir)
	require.NoError(t, err)
	require.NotNil(t, override)
	require.NotNil(t, override.Certification)
	assert.Equal(t, "key", string(override.Certification.PrivateKey))
	assert.Equal(t, "cert", string(override.Certification.Certificate))
	assert.Equal(t, "inter", string(override.Certification.IntermediateCertificate))
	assert.Equal(t, "decl", string(override.Certification.Declaration))
}
