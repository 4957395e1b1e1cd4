package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateFilePath(t *testing.T) {
	assert.NoError(t, ValidateFilePath("waflow.db"))
	assert.NoError(t, ValidateFilePath("data/waflow.db"))
	assert.NoError(t, ValidateFilePath("/var/lib/waflow/waflow.db"))

	assert.Error(t, ValidateFilePath(""))
	assert.Error(t, ValidateFilePath("../secrets.db"))
	assert.Error(t, ValidateFilePath("data/../../secrets.db"))
	assert.Error(t, ValidateFilePath("bad\x00path"))
}

func TestValidateFilePathWithBase(t *testing.T) {
	assert.NoError(t, ValidateFilePathWithBase("config.json", "/etc/waflow"))
	assert.Error(t, ValidateFilePathWithBase("../other/config.json", "/etc/waflow"))
}
