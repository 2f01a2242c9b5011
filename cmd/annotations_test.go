package cmd

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
)

func TestSkipsService(t *testing.T) {
	root := &cobra.Command{Use: "kw"}
	initCmd := NewInitCmd()
	versionCmd := NewVersionCmd()
	parent := &cobra.Command{Use: "tools", Annotations: map[string]string{skipServiceAnnotation: "true"}}
	child := &cobra.Command{Use: "child"}
	parent.AddCommand(child)
	plain := &cobra.Command{Use: "list"}
	root.AddCommand(initCmd, versionCmd, parent, plain)

	assert.True(t, SkipsService(initCmd))
	assert.True(t, SkipsService(versionCmd))
	assert.True(t, SkipsService(child), "inherited from the parent")
	assert.False(t, SkipsService(plain))
	assert.False(t, SkipsService(root))
}

func TestFormatParams(t *testing.T) {
	assert.Equal(t, "", formatParams(nil))
	assert.Equal(t, " (a=1, b=2)", formatParams(map[string]string{"b": "2", "a": "1"}))
}

func TestGetVersionInfo(t *testing.T) {
	info := GetVersionInfo()
	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.GoVersion)
	assert.Contains(t, info.String(), "kw ")
}
