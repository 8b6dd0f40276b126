package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/marmos91/storagehub/internal/bytesize"
)

func bytesizeOf(n uint64) bytesize.ByteSize {
	return bytesize.ByteSize(n)
}

// fakeRunner scripts tool invocations for backend tests so they run
// without zfs or the quota tools installed.
type fakeRunner struct {
	mu    sync.Mutex
	rules []fakeRule
	calls []string
}

type fakeRule struct {
	prefix string // matched against "name arg1 arg2 ..."
	result Result
	err    error
}

func (f *fakeRunner) on(prefix string, result Result, err error) {
	f.rules = append(f.rules, fakeRule{prefix: prefix, result: result, err: err})
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cmdline := strings.Join(append([]string{name}, args...), " ")
	f.calls = append(f.calls, cmdline)

	for _, rule := range f.rules {
		if strings.HasPrefix(cmdline, rule.prefix) {
			return rule.result, rule.err
		}
	}
	return Result{}, fmt.Errorf("unscripted command: %s", cmdline)
}

func (f *fakeRunner) called(prefix string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}
