package vfs

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arctan-os/kfs-vfs/driver"
)

func TestCheckPermsRootBypassesEverything(t *testing.T) {
	st := &driver.Stat{Mode: 0, Uid: 1, Gid: 1}
	err := checkPerms(st, PermRead|PermWrite|PermExec, Caller{Uid: 0, Gid: 0})
	require.NoError(t, err)
}

func TestCheckPermsOwnerGroupOther(t *testing.T) {
	st := &driver.Stat{Mode: fs.FileMode(0o640), Uid: 10, Gid: 20}

	tests := []struct {
		name      string
		caller    Caller
		requested PermMode
		wantErr   bool
	}{
		{"owner can read+write", Caller{Uid: 10, Gid: 20}, PermRead | PermWrite, false},
		{"owner cannot exec", Caller{Uid: 10, Gid: 20}, PermExec, true},
		{"group can read", Caller{Uid: 99, Gid: 20}, PermRead, false},
		{"group cannot write", Caller{Uid: 99, Gid: 20}, PermWrite, true},
		{"other has nothing", Caller{Uid: 99, Gid: 99}, PermRead, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := checkPerms(st, tc.requested, tc.caller)
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
