package projector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func namedTestProfile(name string) Profile {
	p := validTestProfile()
	p.Type = name
	return p
}

func TestRegistryOrder(t *testing.T) {
	assert := assert.New(t)

	r := NewRegistry()
	assert.NoError(r.Register(namedTestProfile("alpha")))
	assert.NoError(r.Register(namedTestProfile("beta")))
	assert.NoError(r.Register(namedTestProfile("gamma")))

	assert.Equal([]string{"alpha", "beta", "gamma"}, r.Types())
}

func TestRegistryUnknownProfile(t *testing.T) {
	r := NewRegistry()

	_, err := r.Get("nope")
	assert.Error(t, err)
	assert.IsType(t, &UnknownProfileError{}, err)
}

func TestRegistryDuplicate(t *testing.T) {
	r := NewRegistry()
	assert.NoError(t, r.Register(namedTestProfile("alpha")))

	err := r.Register(namedTestProfile("alpha"))
	assert.Error(t, err)
	assert.IsType(t, &ConfigError{}, err)
}

func TestRegistryRejectsInvalidProfile(t *testing.T) {
	r := NewRegistry()
	p := namedTestProfile("broken")
	cmd := p.Commands["power_on"]
	cmd.Kind = CommandKind("bogus")
	p.Commands["power_on"] = cmd

	assert.Error(t, r.Register(p))
	assert.Empty(t, r.Types())
}

func TestRegistryReload(t *testing.T) {
	assert := assert.New(t)

	r := NewRegistry()
	assert.NoError(r.Register(namedTestProfile("alpha")))

	err := r.Reload(func(fresh *Registry) error {
		if err := fresh.Register(namedTestProfile("beta")); err != nil {
			return err
		}
		return fresh.Register(namedTestProfile("gamma"))
	})
	assert.NoError(err)
	assert.Equal([]string{"beta", "gamma"}, r.Types())

	_, err = r.Get("alpha")
	assert.Error(err)
}

func TestRegistryReloadKeepsOldOnError(t *testing.T) {
	assert := assert.New(t)

	r := NewRegistry()
	assert.NoError(r.Register(namedTestProfile("alpha")))

	err := r.Reload(func(fresh *Registry) error {
		return fresh.Register(Profile{Type: "broken"})
	})
	assert.Error(err)
	assert.Equal([]string{"alpha"}, r.Types())
}

func TestLoadDefaults(t *testing.T) {
	r := NewRegistry()
	assert.NoError(t, LoadDefaults(r))
	assert.Equal(t, []string{"christie", "epson"}, r.Types())
}
