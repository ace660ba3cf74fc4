package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	"sigs.k8s.io/controller-runtime/pkg/manager/signals"

	"github.com/anvil-platform/muzzle/internal/addon"
	"github.com/anvil-platform/muzzle/internal/classloader"
	"github.com/anvil-platform/muzzle/internal/metrics"
	"github.com/anvil-platform/muzzle/internal/typepool"
)

var setupLog = log.Log.WithName("setup")

// libraryFlags collects repeated -library group:artifact=version flags.
type libraryFlags map[string]string

func (l libraryFlags) String() string {
	parts := make([]string, 0, len(l))
	for name, version := range l {
		parts = append(parts, name+"="+version)
	}
	return strings.Join(parts, ",")
}

func (l libraryFlags) Set(raw string) error {
	name, version, ok := strings.Cut(raw, "=")
	if !ok || name == "" || version == "" {
		return fmt.Errorf("expected name=version, got %q", raw)
	}
	l[name] = version
	return nil
}

// classPath splits a comma separated list and turns local paths into URLs.
func classPath(raw string) []string {
	var entries []string
	for _, entry := range strings.Split(raw, ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			entries = append(entries, url.Normalize(entry, file.Scheme))
		}
	}
	return entries
}

func main() {
	var manifestURL string
	var appClassPath string
	var bootClassPath string
	var moduleFilter string
	var debug bool
	var pushgateway string
	libraries := libraryFlags{}

	flag.StringVar(&manifestURL, "manifest", "", "Location of the instrumentation manifest (any afs URL or local path).")
	flag.StringVar(&appClassPath, "classpath", "", "Comma separated class directories and jars of the application loader.")
	flag.StringVar(&bootClassPath, "bootclasspath", "", "Comma separated class directories and jars of the bootstrap loader.")
	flag.Var(libraries, "library", "Library version loaded by the application, as group:artifact=version. Repeatable.")
	flag.StringVar(&moduleFilter, "module", "", "Only check the module with this name.")
	flag.BoolVar(&debug, "debug", false, "Print and log every mismatch of failing modules.")
	flag.StringVar(&pushgateway, "pushgateway", "", "Push metrics to this Prometheus Pushgateway when done.")

	opts := zap.Options{Development: true}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	log.SetLogger(zap.New(zap.UseFlagOptions(&opts)))
	ctx := log.IntoContext(signals.SetupSignalHandler(), log.Log.WithName("muzzle"))

	if manifestURL == "" {
		setupLog.Info("missing required flag", "flag", "manifest")
		flag.Usage()
		os.Exit(2)
	}

	fs := afs.New()
	manifest, err := addon.LoadManifest(ctx, fs, url.Normalize(manifestURL, file.Scheme))
	if err != nil {
		setupLog.Error(err, "unable to load manifest")
		os.Exit(1)
	}

	loader := classloader.New("app", classloader.Bootstrap, classPath(appClassPath)...)
	loader.Libraries = libraries
	strategy := typepool.NewClassPath(fs, classPath(bootClassPath)...)

	checked, failed := 0, 0
	for _, gate := range manifest.Gates(strategy, debug) {
		name := gate.Module().Name
		if moduleFilter != "" && name != moduleFilter {
			continue
		}
		checked++
		if gate.ShouldApply(ctx, loader) {
			fmt.Printf("PASS %s\n", name)
			continue
		}
		failed++
		fmt.Printf("FAIL %s\n", name)
		if !debug {
			continue
		}
		report := gate.Report(ctx, loader)
		if report.Reason != "" {
			fmt.Printf("  not applicable: %s\n", report.Reason)
		}
		for _, mm := range report.Mismatches {
			fmt.Printf("  %s\n", mm)
		}
	}

	if moduleFilter != "" && checked == 0 {
		setupLog.Info("no module matched filter", "module", moduleFilter)
		os.Exit(1)
	}

	if pushgateway != "" {
		if err := push.New(pushgateway, "muzzle").Gatherer(metrics.Registry).Push(); err != nil {
			setupLog.Error(err, "unable to push metrics", "pushgateway", pushgateway)
		}
	}

	setupLog.Info("checked modules", "checked", checked, "failed", failed)
	if failed > 0 {
		os.Exit(1)
	}
}
