//go:build !wasip1

package guest

import (
	"errors"
)

var errNoHost = errors.New("guest: no host attached; build for wasip1 or call UseHost")

type unavailableHost struct{}

func platformHost() Host { return unavailableHost{} }

func (unavailableHost) WriteKey([]byte, []byte)    { panic(errNoHost) }
func (unavailableHost) ReadKey([]byte) []byte      { panic(errNoHost) }
func (unavailableHost) Body(uint32, uint32) []byte { panic(errNoHost) }
func (unavailableHost) Respond(uint32, []byte)     { panic(errNoHost) }
