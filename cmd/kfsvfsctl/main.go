//
//  Copyright 2020 The AVFS authors
//
//  Licensed under the Apache License, Version 2.0 (the "License");
//  you may not use this file except in compliance with the License.
//  You may obtain a copy of the License at
//
//  	http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.
//

// Command kfsvfsctl drives a single in-process VFS context from the shell,
// backed by an in-memory driver. It exists to exercise the namespace
// operations end to end without a kernel underneath them.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/arctan-os/kfs-vfs/driver/memdriver"
	"github.com/arctan-os/kfs-vfs/vfs"
)

var (
	caller = vfs.Caller{Uid: 0, Gid: 0}
	ctx    *vfs.VFS
	mem    *memdriver.FS
)

func main() {
	logrus.SetLevel(logrus.WarnLevel)

	mem = memdriver.New()
	ctx = vfs.New()

	if err := ctx.Mount("/", mem.Resource(), caller); err != nil {
		fmt.Fprintln(os.Stderr, "mount /:", err)
		os.Exit(1)
	}

	root := &cobra.Command{
		Use:   "kfsvfsctl",
		Short: "drive an in-process kernel VFS context backed by an in-memory store",
	}

	root.AddCommand(
		cmdMkdir(),
		cmdCreate(),
		cmdWrite(),
		cmdRead(),
		cmdLs(),
		cmdStat(),
		cmdRm(),
		cmdMv(),
		cmdLn(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func cmdMkdir() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <path>",
		Short: "create a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.Create(args[0], &vfs.CreateInfo{Mode: 0o755, Type: vfs.TypeDir}, caller)
		},
	}
}

func cmdCreate() *cobra.Command {
	return &cobra.Command{
		Use:   "create <path>",
		Short: "create an empty file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.Create(args[0], &vfs.CreateInfo{Mode: 0o644, Type: vfs.TypeFile}, caller)
		},
	}
}

func cmdWrite() *cobra.Command {
	return &cobra.Command{
		Use:   "write <path> <text>",
		Short: "open (creating if needed) and write text to a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := ctx.Open(args[0], os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644, caller)
			if err != nil {
				return err
			}

			defer f.Close()

			_, err = f.Write([]byte(args[1]))

			return err
		},
	}
}

func cmdRead() *cobra.Command {
	return &cobra.Command{
		Use:   "read <path>",
		Short: "open and print the contents of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := ctx.Open(args[0], os.O_RDONLY, 0, caller)
			if err != nil {
				return err
			}

			defer f.Close()

			buf := make([]byte, 4096)

			n, err := f.Read(buf)
			if err != nil && n == 0 {
				return err
			}

			fmt.Println(string(buf[:n]))

			return nil
		},
	}
}

func cmdLs() *cobra.Command {
	var depth int

	c := &cobra.Command{
		Use:   "ls <path>",
		Short: "list a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := ctx.List(args[0], depth, caller)
			if err != nil {
				return err
			}

			vfs.Fprint(os.Stdout, entries)

			return nil
		},
	}

	c.Flags().IntVar(&depth, "depth", 1, "listing depth")

	return c
}

func cmdStat() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>",
		Short: "print cached metadata for a path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.Stat(args[0], caller)
			if err != nil {
				return err
			}

			fmt.Printf("mode=%s size=%d uid=%d gid=%d\n", st.Mode, st.Size, st.Uid, st.Gid)

			return nil
		},
	}
}

func cmdRm() *cobra.Command {
	var recurse bool

	c := &cobra.Command{
		Use:   "rm <path>",
		Short: "remove a path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.Remove(args[0], recurse, caller)
		},
	}

	c.Flags().BoolVarP(&recurse, "recursive", "r", false, "remove directories and their contents")

	return c
}

func cmdMv() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <from> <to>",
		Short: "rename or move a path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.Rename(args[0], args[1], caller)
		},
	}
}

func cmdLn() *cobra.Command {
	return &cobra.Command{
		Use:   "ln <target> <linkpath>",
		Short: "create a symbolic link",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.Link(args[0], args[1], 0o777, caller)
		},
	}
}
