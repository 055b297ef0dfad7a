package target

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefinition_Builder(t *testing.T) {
	var calls []string
	task := func(name string) Task {
		return func(ctx context.Context) error {
			calls = append(calls, name)
			return nil
		}
	}

	factory := Factory(func(d *Definition) *Definition {
		return d.
			DescribedAs("Packs the library").
			DependsOn("Compile", "Test", "Compile").
			RequiresParam("build-version").
			ProducesArtifact("packages").
			ConsumesArtifact("Compile", "bin", "bin").
			ProducesVariable("package-version").
			ConsumesVariable("Setup", "build-id").
			Executes(task("one"), nil, task("two"))
	})

	d := factory(New("Pack"))

	assert.Equal(t, "Pack", d.Name)
	assert.Equal(t, "Packs the library", d.Description)
	assert.False(t, d.Hidden)
	assert.Equal(t, []string{"Compile", "Test"}, d.Dependencies)
	assert.Equal(t, []string{"build-version"}, d.Requirements)
	assert.Equal(t, []string{"packages"}, d.ProducedArtifacts)
	assert.Equal(t, []ArtifactRef{{Target: "Compile", Name: "bin"}}, d.ConsumedArtifacts)
	assert.Equal(t, []string{"package-version"}, d.ProducedVariables)
	assert.Equal(t, []VariableRef{{Target: "Setup", Name: "build-id"}}, d.ConsumedVariables)
	assert.True(t, d.Produces("packages"))
	assert.False(t, d.Produces("bin"))
	assert.True(t, d.ProducesVar("package-version"))

	assert.Len(t, d.Tasks, 2)
	for _, task := range d.Tasks {
		assert.NoError(t, task(context.Background()))
	}
	assert.Equal(t, []string{"one", "two"}, calls)
}

func TestDefinition_IsHidden(t *testing.T) {
	assert.True(t, New("Internal").IsHidden().Hidden)
}
