package credentials

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

type providerInfo struct {
	key     string
	label   string
	keyHint string
	aliases []string
}

var knownProviders = []providerInfo{
	{key: "openai", label: "OpenAI-compatible (OpenAI, OpenRouter, aipipe)", keyHint: "https://platform.openai.com/api-keys", aliases: []string{"1", "openai", "oa"}},
	{key: "gemini", label: "Google Gemini", keyHint: "https://aistudio.google.com/apikey", aliases: []string{"2", "gemini", "google"}},
}

func lookupProvider(choice string) (providerInfo, bool) {
	choice = strings.ToLower(strings.TrimSpace(choice))
	for _, p := range knownProviders {
		for _, a := range p.aliases {
			if a == choice {
				return p, true
			}
		}
	}
	return providerInfo{}, false
}

// Wizard runs the interactive credential dialogs over arbitrary streams.
type Wizard struct {
	in  *bufio.Reader
	out io.Writer
	mgr *Manager
}

// NewWizard reads answers from in and writes prompts to out.
func NewWizard(mgr *Manager, in io.Reader, out io.Writer) *Wizard {
	return &Wizard{in: bufio.NewReader(in), out: out, mgr: mgr}
}

func (w *Wizard) println(a ...any) { fmt.Fprintln(w.out, a...) }

func (w *Wizard) prompt(label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(w.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(w.out, "%s: ", label)
	}
	line, err := w.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("read answer: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return def, nil
	}
	return line, nil
}

// Onboard runs the first-time setup and saves the result.
func (w *Wizard) Onboard() (*Credentials, error) {
	w.println()
	w.println("Welcome to MinAI! Let's connect an AI provider.")
	w.println()

	creds, err := w.mgr.Load()
	if err != nil {
		return nil, err
	}
	provider, err := w.chooseProvider()
	if err != nil {
		return nil, err
	}
	apiKey, err := w.apiKey(provider)
	if err != nil {
		return nil, err
	}
	creds.DefaultProvider = provider.key
	creds.SetProvider(provider.key, apiKey)
	if err := w.mgr.Save(creds); err != nil {
		return nil, fmt.Errorf("save credentials: %w", err)
	}

	w.println()
	w.println("API key saved to:", w.mgr.Path())
	w.println(strings.ToUpper(provider.key), "set as default provider")
	return creds, nil
}

func (w *Wizard) chooseProvider() (providerInfo, error) {
	w.println("Which AI provider would you like to use?")
	for i, p := range knownProviders {
		fmt.Fprintf(w.out, "  %d) %s\n", i+1, p.label)
	}
	choice, err := w.prompt("Choice", "1")
	if err != nil {
		return providerInfo{}, err
	}
	p, ok := lookupProvider(choice)
	if !ok {
		return providerInfo{}, fmt.Errorf("invalid choice: %s", choice)
	}
	w.println("Get a key at:", p.keyHint)
	return p, nil
}

func (w *Wizard) apiKey(p providerInfo) (string, error) {
	for attempt := 0; attempt < 3; attempt++ {
		key, err := w.prompt(fmt.Sprintf("Enter your %s API key", strings.ToUpper(p.key)), "")
		if err != nil {
			return "", err
		}
		if key != "" {
			return key, nil
		}
		w.println("API key cannot be empty. Please try again.")
	}
	return "", fmt.Errorf("no API key entered")
}

// Menu shows the credential management loop used by `config` and
// `minai setup`.
func (w *Wizard) Menu() error {
	creds, err := w.mgr.Load()
	if err != nil {
		return err
	}
	for {
		w.println()
		w.println("MinAI Setup")
		def := creds.DefaultProvider
		if def == "" {
			def = "(not set)"
		}
		w.println("  Default Provider:", strings.ToUpper(def))
		configured := creds.ListProviders()
		if len(configured) == 0 {
			w.println("  Configured: (none)")
		} else {
			w.println("  Configured:", strings.ToUpper(strings.Join(configured, ", ")))
		}
		w.println("Options:")
		w.println("  1) Add/update provider API key")
		w.println("  2) Change default provider")
		w.println("  3) Remove provider")
		w.println("  4) Exit")

		choice, err := w.prompt("Choice", "4")
		if err != nil {
			return err
		}
		switch choice {
		case "1":
			err = w.addProvider(creds)
		case "2":
			err = w.changeDefault(creds)
		case "3":
			err = w.removeProvider(creds)
		case "4", "exit", "quit", "q":
			return nil
		default:
			w.println("Invalid choice")
			continue
		}
		if err != nil {
			w.println("Error:", err)
		}
	}
}

func (w *Wizard) addProvider(creds *Credentials) error {
	p, err := w.chooseProvider()
	if err != nil {
		return err
	}
	key, err := w.apiKey(p)
	if err != nil {
		return err
	}
	creds.SetProvider(p.key, key)
	if creds.DefaultProvider == "" {
		creds.DefaultProvider = p.key
	}
	if err := w.mgr.Save(creds); err != nil {
		return err
	}
	w.println(strings.ToUpper(p.key), "API key saved")
	return nil
}

func (w *Wizard) changeDefault(creds *Credentials) error {
	configured := creds.ListProviders()
	if len(configured) == 0 {
		return fmt.Errorf("no providers configured")
	}
	choice, err := w.prompt("Default provider ("+strings.Join(configured, ", ")+")", configured[0])
	if err != nil {
		return err
	}
	p, ok := lookupProvider(choice)
	if !ok || !creds.IsConfigured(p.key) {
		return fmt.Errorf("provider %s is not configured", choice)
	}
	creds.DefaultProvider = p.key
	return w.mgr.Save(creds)
}

func (w *Wizard) removeProvider(creds *Credentials) error {
	choice, err := w.prompt("Provider to remove", "")
	if err != nil {
		return err
	}
	p, ok := lookupProvider(choice)
	if !ok {
		return fmt.Errorf("invalid provider: %s", choice)
	}
	creds.RemoveProvider(p.key)
	return w.mgr.Save(creds)
}
