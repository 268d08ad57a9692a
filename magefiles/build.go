//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Compiles the cull compute shaders to SPIR-V.
func (Build) Shaders() error {
	shaders := []string{
		"cull_passthrough",
		"cull_frustum",
		"cull_hierarchical",
	}
	for _, shader := range shaders {
		src := "assets/shaders/" + shader + ".comp"
		dst := "assets/shaders/" + shader + ".comp.spv"
		if _, err := executeCmd("glslc", withArgs(src, "-o", dst), withStream()); err != nil {
			return err
		}
	}
	return nil
}

// Builds the testbed binary.
func (Build) Testbed() error {
	if _, err := executeCmd("go", withArgs("build", "-o", "bin/testbed", "."), withStream()); err != nil {
		return err
	}
	return nil
}
