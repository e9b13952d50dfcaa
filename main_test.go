package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"shopauth/cmd"
)

func TestVersionDefault(t *testing.T) {
	assert.Equal(t, "dev", version)
}

func TestSetVersionPropagates(t *testing.T) {
	original := cmd.GetVersion()
	defer cmd.SetVersion(original)

	cmd.SetVersion(version)
	assert.Equal(t, version, cmd.GetVersion())
}
