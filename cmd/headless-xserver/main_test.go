package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDisplay(t *testing.T) {
	n, err := parseDisplay(":3")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = parseDisplay("12")
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	_, err = parseDisplay(":x")
	assert.Error(t, err)
}

func TestParseSize(t *testing.T) {
	w, h, err := parseSize("1280x720")
	require.NoError(t, err)
	assert.Equal(t, uint16(1280), w)
	assert.Equal(t, uint16(720), h)
	for _, bad := range []string{"", "800", "0x600", "axb"} {
		_, _, err := parseSize(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseArgs(t *testing.T) {
	require.NoError(t, parseArgs([]string{"headless-xserver", "-d", ":5", "-s", "640x480", "-l", "127.0.0.1:9000", "-r"}))
	assert.Equal(t, 5, display)
	assert.Equal(t, uint16(640), width)
	assert.Equal(t, uint16(480), height)
	assert.Equal(t, "127.0.0.1:9000", listenAddr)
	assert.True(t, relative)

	assert.Error(t, parseArgs([]string{"headless-xserver", "extra"}))
}
