package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/anvil-platform/muzzle/internal/classloader"
	"github.com/anvil-platform/muzzle/internal/reference"
	"github.com/anvil-platform/muzzle/internal/typepool"
)

func split(raw string) []string {
	var entries []string
	for _, entry := range strings.Split(raw, ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			entries = append(entries, url.Normalize(entry, file.Scheme))
		}
	}
	return entries
}

func main() {
	var classPath string
	var bootClassPath string
	var timeout time.Duration
	flag.StringVar(&classPath, "classpath", "", "Comma separated class directories and jars.")
	flag.StringVar(&bootClassPath, "bootclasspath", "", "Comma separated boot class directories and jars.")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "Give up after this long.")

	opts := zap.Options{Development: true}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()
	log.SetLogger(zap.New(zap.UseFlagOptions(&opts)))

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: muzzle-describe [flags] class...")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(log.IntoContext(context.Background(), log.Log.WithName("describe")), timeout)
	defer cancel()

	strategy := typepool.NewClassPath(afs.New(), split(bootClassPath)...)
	pool := strategy.TypePool(ctx, classloader.New("app", classloader.Bootstrap, split(classPath)...))

	failed := false
	for _, name := range flag.Args() {
		if err := describe(ctx, pool, name); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func describe(ctx context.Context, pool typepool.Pool, name string) error {
	res := pool.Describe(ctx, name)
	if err := res.Err(); err != nil {
		return err
	}
	if !res.Resolved() {
		return fmt.Errorf("class not found")
	}

	t := res.Type()
	fmt.Printf("%s %s\n", reference.FormatModifiers(t.Modifiers()), t.Name())
	for _, f := range t.DeclaredFields() {
		fmt.Printf("  field  %s %s %s\n", reference.FormatModifiers(f.Modifiers), f.Type, f.Name)
	}
	for _, m := range t.DeclaredMethods() {
		fmt.Printf("  method %s %s%s\n", reference.FormatModifiers(m.Modifiers), m.Name, m.Descriptor)
	}
	for _, iface := range t.Interfaces() {
		fmt.Printf("  implements %s\n", linkName(iface))
	}

	for super := t.SuperClass(); super != nil; {
		super = typepool.Settle(super)
		if err := super.Err(); err != nil {
			fmt.Printf("  extends <%v>\n", err)
			break
		}
		fmt.Printf("  extends %s\n", super.Type().Name())
		super = super.Type().SuperClass()
	}
	return nil
}

func linkName(r typepool.Resolution) string {
	r = typepool.Settle(r)
	if err := r.Err(); err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return r.Type().Name()
}
