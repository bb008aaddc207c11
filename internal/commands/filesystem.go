package commands

import (
	"context"
	"errors"
	"strings"

	"minai/internal/vfs"
)

// RegisterFileSystem installs ls, cd, pwd, mkdir, rmdir, touch, rm, cp, mv and tree.
func RegisterFileSystem(reg *Registry, env Env) {
	fs := env.FS

	reg.Register(Spec{
		Name:        "ls",
		Description: "List directory contents",
		Usage:       "ls [-la] [path...]",
		Category:    CategoryFileSystem,
		ExpandGlobs: true,
		Handler: func(_ context.Context, inv *Invocation) (string, error) {
			opts := vfs.ListOptions{All: inv.Flags.Has('a'), Long: inv.Flags.Has('l')}
			if len(inv.Args) <= 1 {
				return fs.Ls(inv.Arg(0), opts)
			}
			var blocks []string
			var errs []error
			for _, p := range inv.Args {
				out, err := fs.Ls(p, opts)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				if fs.IsDir(p) {
					out = p + ":\n" + out
				}
				blocks = append(blocks, out)
			}
			return strings.Join(blocks, "\n"), errors.Join(errs...)
		},
	})

	reg.Register(Spec{
		Name:        "cd",
		Description: "Change directory",
		Usage:       "cd [path | - | ~]",
		Category:    CategoryFileSystem,
		Handler: func(_ context.Context, inv *Invocation) (string, error) {
			return "", fs.Cd(inv.Arg(0))
		},
	})

	reg.Register(Spec{
		Name:        "pwd",
		Description: "Print working directory",
		Usage:       "pwd",
		Category:    CategoryFileSystem,
		Handler: func(context.Context, *Invocation) (string, error) {
			return fs.Pwd(), nil
		},
	})

	reg.Register(Spec{
		Name:            "mkdir",
		Description:     "Create directory",
		Usage:           "mkdir [-p] <path>...",
		Category:        CategoryFileSystem,
		NeedsPermission: true,
		Handler: func(_ context.Context, inv *Invocation) (string, error) {
			if len(inv.Args) == 0 {
				return "", usage("mkdir [-p] <path>...")
			}
			var errs []error
			for _, p := range inv.Args {
				var err error
				if inv.Flags.Has('p') {
					err = mkdirAll(fs, p)
				} else {
					err = fs.Mkdir(p)
				}
				if err != nil {
					errs = append(errs, err)
				}
			}
			return "", errors.Join(errs...)
		},
	})

	reg.Register(Spec{
		Name:            "rmdir",
		Description:     "Remove empty directory",
		Usage:           "rmdir <path>...",
		Category:        CategoryFileSystem,
		NeedsPermission: true,
		Handler: eachPath("rmdir <path>...", fs.Rmdir),
	})

	reg.Register(Spec{
		Name:            "touch",
		Description:     "Create file or update timestamp",
		Usage:           "touch <file>...",
		Category:        CategoryFileSystem,
		NeedsPermission: true,
		Handler: eachPath("touch <file>...", fs.Touch),
	})

	reg.Register(Spec{
		Name:            "rm",
		Description:     "Remove files",
		Usage:           "rm [-rf] <file>...",
		Category:        CategoryFileSystem,
		NeedsPermission: true,
		ExpandGlobs:     true,
		Handler: func(_ context.Context, inv *Invocation) (string, error) {
			if len(inv.Args) == 0 {
				return "", usage("rm [-rf] <file>...")
			}
			recursive := inv.Flags.Any('r', 'R')
			var errs []error
			for _, p := range inv.Args {
				err := fs.Rm(p, recursive)
				if err != nil && !(inv.Flags.Has('f') && vfs.IsKind(err, vfs.NotFound)) {
					errs = append(errs, err)
				}
			}
			return "", errors.Join(errs...)
		},
	})

	reg.Register(Spec{
		Name:            "cp",
		Description:     "Copy files and directories",
		Usage:           "cp [-r] <src>... <dest>",
		Category:        CategoryFileSystem,
		NeedsPermission: true,
		ExpandGlobs:     true,
		Handler: sourcesToDest("cp [-r] <src>... <dest>", func(inv *Invocation, src, dest string) error {
			return fs.Cp(src, dest, inv.Flags.Any('r', 'R'))
		}),
	})

	reg.Register(Spec{
		Name:            "mv",
		Description:     "Move or rename files",
		Usage:           "mv <src>... <dest>",
		Category:        CategoryFileSystem,
		NeedsPermission: true,
		ExpandGlobs:     true,
		Handler: sourcesToDest("mv <src>... <dest>", func(_ *Invocation, src, dest string) error {
			return fs.Mv(src, dest)
		}),
	})

	reg.Register(Spec{
		Name:        "tree",
		Description: "Display directory tree",
		Usage:       "tree [path]",
		Category:    CategoryFileSystem,
		Handler: func(_ context.Context, inv *Invocation) (string, error) {
			return fs.Tree(inv.Arg(0))
		},
	})
}

func eachPath(spec string, op func(string) error) Handler {
	return func(_ context.Context, inv *Invocation) (string, error) {
		if len(inv.Args) == 0 {
			return "", usage(spec)
		}
		var errs []error
		for _, p := range inv.Args {
			if err := op(p); err != nil {
				errs = append(errs, err)
			}
		}
		return "", errors.Join(errs...)
	}
}

func sourcesToDest(spec string, op func(inv *Invocation, src, dest string) error) Handler {
	return func(_ context.Context, inv *Invocation) (string, error) {
		if len(inv.Args) < 2 {
			return "", usage(spec)
		}
		dest := inv.Args[len(inv.Args)-1]
		var errs []error
		for _, src := range inv.Args[:len(inv.Args)-1] {
			if err := op(inv, src, dest); err != nil {
				errs = append(errs, err)
			}
		}
		return "", errors.Join(errs...)
	}
}

// mkdirAll creates every missing directory along p.
func mkdirAll(fs *vfs.FileSystem, p string) error {
	prefix := ""
	if strings.HasPrefix(p, "/") {
		prefix = "/"
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" {
			continue
		}
		prefix += seg
		if !fs.IsDir(prefix) {
			if err := fs.Mkdir(prefix); err != nil {
				return err
			}
		}
		prefix += "/"
	}
	return nil
}
