// Command uefisettings is a thin CLI over the hii, transport, and backend
// packages: identify which settings backend a machine supports, inspect the
// HII form tree, and get or set a question's value.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/go-logr/logr"
	"github.com/metal3-community/uefi-settings/backend"
	"github.com/metal3-community/uefi-settings/hii"
	"github.com/metal3-community/uefi-settings/rest"
	"github.com/metal3-community/uefi-settings/transport"
	"github.com/metal3-community/uefi-settings/varstore"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	logger := logr.Discard()

	switch os.Args[1] {
	case "identify":
		runIdentify()
	case "show-ifr":
		runShowIFR(logger)
	case "list-questions":
		runListQuestions(logger)
	case "get":
		runGet(logger)
	case "set":
		runSet(logger)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: uefisettings <identify|show-ifr|list-questions|get|set> [flags]")
}

func runIdentify() {
	fs := flag.NewFlagSet("identify", flag.ExitOnError)
	libPath := fs.String("chif-lib", "", "path to ilorest_chif.so (auto-detected if empty)")
	fs.Parse(os.Args[2:])

	info := backend.IdentifyMachine(*libPath)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(info); err != nil {
		log.Fatalf("encoding machine info: %v", err)
	}
}

func runShowIFR(logger logr.Logger) {
	fs := flag.NewFlagSet("show-ifr", flag.ExitOnError)
	selector := fs.String("selector", "", "package-list GUID to restrict to (all when empty)")
	fs.Parse(os.Args[2:])

	hb, err := openHiiBackend(logger)
	if err != nil {
		log.Fatalf("opening hii backend: %v", err)
	}
	out, err := hb.ShowIFR(*selector)
	if err != nil {
		log.Fatalf("show-ifr: %v", err)
	}
	fmt.Print(out)
}

func runListQuestions(logger logr.Logger) {
	fs := flag.NewFlagSet("list-questions", flag.ExitOnError)
	selector := fs.String("selector", "", "package-list GUID to restrict to (all when empty)")
	fs.Parse(os.Args[2:])

	hb, err := openHiiBackend(logger)
	if err != nil {
		log.Fatalf("opening hii backend: %v", err)
	}
	questions, err := hb.ListQuestions(*selector)
	if err != nil {
		log.Fatalf("list-questions: %v", err)
	}
	for _, q := range questions {
		fmt.Printf("%s (id %d)\n", q.Prompt, q.Header.QuestionID)
	}
}

func runGet(logger logr.Logger) {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	backendName := fs.String("backend", "hii", "backend to query: hii or ilo")
	selector := fs.String("selector", "", "selector to restrict the search to")
	chifLib := fs.String("chif-lib", "", "path to ilorest_chif.so (ilo backend only)")
	host := fs.String("host", "16.1.15.1", "Host header value (ilo backend only)")
	fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		log.Fatal("get requires a question name argument")
	}
	question := fs.Arg(0)

	sb, err := openBackend(logger, *backendName, *chifLib, *host)
	if err != nil {
		log.Fatalf("opening %s backend: %v", *backendName, err)
	}

	responses, err := sb.Get(question, *selector)
	if err != nil {
		log.Fatalf("get: %v", err)
	}
	printResponses(responses)
}

func runSet(logger logr.Logger) {
	fs := flag.NewFlagSet("set", flag.ExitOnError)
	backendName := fs.String("backend", "hii", "backend to write to: hii or ilo")
	selector := fs.String("selector", "", "selector to restrict the write to")
	chifLib := fs.String("chif-lib", "", "path to ilorest_chif.so (ilo backend only)")
	host := fs.String("host", "16.1.15.1", "Host header value (ilo backend only)")
	fs.Parse(os.Args[2:])

	if fs.NArg() < 2 {
		log.Fatal("set requires question and new-value arguments")
	}
	question, newValue := fs.Arg(0), fs.Arg(1)

	sb, err := openBackend(logger, *backendName, *chifLib, *host)
	if err != nil {
		log.Fatalf("opening %s backend: %v", *backendName, err)
	}

	responses, err := sb.Set(question, newValue, *selector)
	if err != nil {
		log.Fatalf("set: %v", err)
	}
	for _, r := range responses {
		fmt.Printf("%s: %s -> modified=%v (selector=%s)\n", r.Backend, r.Question, r.Modified, r.Selector)
	}
}

func openBackend(logger logr.Logger, name, chifLib, host string) (backend.SettingsBackend, error) {
	switch name {
	case "hii":
		return openHiiBackend(logger)
	case "ilo":
		return openIloBackend(logger, chifLib, host)
	default:
		return nil, fmt.Errorf("unknown backend %q", name)
	}
}

func openHiiBackend(logger logr.Logger) (*backend.HiiBackend, error) {
	raw, err := hii.ExtractDB()
	if err != nil {
		return nil, err
	}
	db, err := hii.ReadDB(raw)
	if err != nil {
		return nil, err
	}
	store := varstore.NewEfiVarStore(logger)
	return backend.NewHiiBackend(logger, store, db, nil), nil
}

func openIloBackend(logger logr.Logger, chifLib, host string) (*backend.IloBackend, error) {
	path := chifLib
	if path == "" {
		found, err := transport.FindLibrary()
		if err != nil {
			return nil, err
		}
		path = found
	}
	client := rest.NewClient(logger, path, host)
	return backend.NewIloBackend(logger, client, nil)
}

func printResponses(responses []backend.GetResponse) {
	for _, r := range responses {
		fmt.Printf("%s: %s = %q (selector=%s, translated=%v)\n", r.Backend, r.Question, r.Answer, r.Selector, r.IsTranslated)
	}
}
