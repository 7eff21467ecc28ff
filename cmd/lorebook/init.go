// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lorebook Contributors

package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/lorebook-dev/lorebook/internal/config"
	"github.com/lorebook-dev/lorebook/internal/embedding"
	"github.com/lorebook-dev/lorebook/internal/embedding/ollama"
	"github.com/lorebook-dev/lorebook/internal/secrets"
	"github.com/lorebook-dev/lorebook/internal/store"
	"github.com/lorebook-dev/lorebook/internal/store/qdrant"
	lberr "github.com/lorebook-dev/lorebook/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// annotationNoBootstrap marks commands that must not create the default
// config file before they run.
const annotationNoBootstrap = "lorebook/no-bootstrap"

const (
	keyOpenAI = "openai_api_key"
	keyQdrant = "qdrant_api_key"

	probeTimeout = 30 * time.Second
)

type initStep int

const (
	stepBackend    initStep = iota // select vector store
	stepStorageURL                 // qdrant url
	stepStorageKey                 // qdrant api key, optional
	stepProvider                   // select embedding provider
	stepCredential                 // openai key or ollama endpoint
	stepValidate                   // probing the provider (spinner)
	stepDone
	stepError
)

var (
	supportedBackends  = []string{"qdrant", "sqlite", "memory"}
	supportedProviders = []string{"openai", "ollama"}
)

// initResult holds the answers collected by the wizard.
type initResult struct {
	Backend    string
	StorageURL string
	StorageKey string
	Provider   string
	APIKey     string
	Endpoint   string
}

func (r initResult) embeddingConfig() embedding.Config {
	cfg := embedding.Config{Provider: r.Provider, APIKey: r.APIKey, Endpoint: r.Endpoint}
	cfg.Model, cfg.Dimensions = defaultModelForProvider(r.Provider)
	return cfg
}

type (
	validationSuccessMsg struct{}
	validationErrorMsg   struct{ err error }
	configWrittenMsg     struct{ path string }
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	promptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")).Padding(0, 1)
)

type initModel struct {
	step           initStep
	backendIdx     int
	providerIdx    int
	urlInput       textinput.Model
	storageKey     textinput.Model
	credential     textinput.Model
	spinner        spinner.Model
	result         initResult
	validationErr  string
	configPath     string
	secretStore    secrets.Store
	errFinal       error
	forceOverwrite bool
}

func newInitModel(s secrets.Store) initModel {
	url := textinput.New()
	url.Placeholder = "https://your-cluster.cloud.qdrant.io:6333"

	key := textinput.New()
	key.Placeholder = "leave empty for an unauthenticated local Qdrant"
	key.EchoMode = textinput.EchoPassword
	key.EchoCharacter = '•'

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return initModel{
		step:        stepBackend,
		urlInput:    url,
		storageKey:  key,
		credential:  textinput.New(),
		spinner:     sp,
		secretStore: s,
	}
}

func (m initModel) Init() tea.Cmd {
	return nil
}

func (m initModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case validationSuccessMsg:
		return m, writeConfigCmd(m.result, m.secretStore, m.forceOverwrite)

	case validationErrorMsg:
		m.validationErr = msg.err.Error()
		m.step = stepCredential
		m.credential.Focus()
		return m, nil

	case configWrittenMsg:
		m.step = stepDone
		m.configPath = msg.path
		return m, tea.Quit

	case error:
		m.step = stepError
		m.errFinal = msg
		return m, tea.Quit
	}

	return m.updateInput(msg)
}

func (m initModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.step {
	case stepBackend:
		return m.handleBackendKey(msg)
	case stepStorageURL:
		return m.handleStorageURL(msg)
	case stepStorageKey:
		return m.handleStorageKey(msg)
	case stepProvider:
		return m.handleProviderKey(msg)
	case stepCredential:
		return m.handleCredential(msg)
	}
	return m, nil
}

func (m initModel) handleBackendKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.result.Backend = supportedBackends[m.backendIdx]
		m.validationErr = ""
		if m.result.Backend != "qdrant" {
			m.step = stepProvider
			return m, nil
		}
		m.step = stepStorageURL
		m.urlInput.Focus()
		return m, textinput.Blink
	case "q":
		return m, tea.Quit
	default:
		m.backendIdx = moveCursor(m.backendIdx, len(supportedBackends), msg.String())
	}
	return m, nil
}

func (m initModel) handleStorageURL(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() != "enter" {
		var cmd tea.Cmd
		m.urlInput, cmd = m.urlInput.Update(msg)
		return m, cmd
	}

	raw := strings.TrimSpace(m.urlInput.Value())
	if raw == "" {
		m.validationErr = "Qdrant URL must not be empty"
		return m, nil
	}
	if _, err := qdrant.ParseEndpoint(raw, store.DefaultGRPCPort); err != nil {
		m.validationErr = err.Error()
		return m, nil
	}

	m.result.StorageURL = raw
	m.validationErr = ""
	m.urlInput.Blur()
	m.step = stepStorageKey
	m.storageKey.Focus()
	return m, textinput.Blink
}

func (m initModel) handleStorageKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() != "enter" {
		var cmd tea.Cmd
		m.storageKey, cmd = m.storageKey.Update(msg)
		return m, cmd
	}

	m.result.StorageKey = strings.TrimSpace(m.storageKey.Value())
	m.storageKey.Blur()
	m.step = stepProvider
	return m, nil
}

func (m initModel) handleProviderKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.result.Provider = supportedProviders[m.providerIdx]
		m.validationErr = ""
		m.credential = credentialInput(m.result.Provider)
		m.credential.Focus()
		m.step = stepCredential
		return m, textinput.Blink
	case "q":
		return m, tea.Quit
	default:
		m.providerIdx = moveCursor(m.providerIdx, len(supportedProviders), msg.String())
	}
	return m, nil
}

func (m initModel) handleCredential(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() != "enter" {
		var cmd tea.Cmd
		m.credential, cmd = m.credential.Update(msg)
		return m, cmd
	}

	val := strings.TrimSpace(m.credential.Value())
	switch m.result.Provider {
	case "openai":
		if val == "" {
			m.validationErr = "API key must not be empty"
			return m, nil
		}
		m.result.APIKey = val
	case "ollama":
		if val == "" {
			val = ollama.DefaultEndpoint
		}
		m.result.Endpoint = val
	}

	m.validationErr = ""
	m.step = stepValidate
	return m, tea.Batch(m.spinner.Tick, validateEmbeddingCmd(m.result))
}

func (m initModel) updateInput(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.step {
	case stepStorageURL:
		m.urlInput, cmd = m.urlInput.Update(msg)
	case stepStorageKey:
		m.storageKey, cmd = m.storageKey.Update(msg)
	case stepCredential:
		m.credential, cmd = m.credential.Update(msg)
	}
	return m, cmd
}

func (m initModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("  Lorebook Setup  ") + "\n\n")

	switch m.step {
	case stepBackend:
		b.WriteString(promptStyle.Render("Step 1/3: Where should entries be stored?") + "\n\n")
		writeChoices(&b, supportedBackends, m.backendIdx)
		b.WriteString("\n" + dimStyle.Render("↑/↓ to navigate  enter to select  q to quit"))

	case stepStorageURL:
		b.WriteString(promptStyle.Render("Step 2/3: Qdrant URL") + "\n\n")
		b.WriteString(m.urlInput.View() + "\n")
		m.writeValidationErr(&b)
		b.WriteString("\n" + dimStyle.Render("enter to continue  ctrl+c to quit"))

	case stepStorageKey:
		b.WriteString(promptStyle.Render("Step 2/3: Qdrant API key") + "\n\n")
		b.WriteString(m.storageKey.View() + "\n")
		b.WriteString("\n" + dimStyle.Render("enter to continue  ctrl+c to quit"))

	case stepProvider:
		b.WriteString(promptStyle.Render("Step 3/3: Embedding provider") + "\n\n")
		writeChoices(&b, supportedProviders, m.providerIdx)
		b.WriteString("\n" + dimStyle.Render("↑/↓ to navigate  enter to select  q to quit"))

	case stepCredential:
		label := "OpenAI API key"
		if m.result.Provider == "ollama" {
			label = "Ollama endpoint"
		}
		b.WriteString(promptStyle.Render("Step 3/3: "+label) + "\n\n")
		b.WriteString(m.credential.View() + "\n")
		m.writeValidationErr(&b)
		b.WriteString("\n" + dimStyle.Render("enter to continue  ctrl+c to quit"))

	case stepValidate:
		b.WriteString(m.spinner.View() + " Checking " + m.result.Provider + "…\n")

	case stepDone:
		b.WriteString(successStyle.Render("  Setup complete!  ") + "\n\n")
		if m.configPath != "" {
			b.WriteString(dimStyle.Render("Config written to: "+m.configPath) + "\n\n")
		}
		b.WriteString("Run " + promptStyle.Render("lorebook serve") + " to start the API.\n")
		b.WriteString("Run " + promptStyle.Render("lorebook doctor") + " to verify setup.\n")

	case stepError:
		b.WriteString(errorStyle.Render("Setup failed: "+m.errFinal.Error()) + "\n")
	}

	return boxStyle.Render(b.String())
}

func (m initModel) writeValidationErr(b *strings.Builder) {
	if m.validationErr != "" {
		b.WriteString("\n" + errorStyle.Render("  "+m.validationErr) + "\n")
	}
}

func writeChoices(b *strings.Builder, choices []string, selected int) {
	for i, c := range choices {
		if i == selected {
			b.WriteString(selectedStyle.Render("  > "+c) + "\n")
		} else {
			b.WriteString(dimStyle.Render("    "+c) + "\n")
		}
	}
}

func moveCursor(idx, n int, key string) int {
	switch key {
	case "up", "k":
		if idx > 0 {
			idx--
		}
	case "down", "j":
		if idx < n-1 {
			idx++
		}
	}
	return idx
}

func credentialInput(provider string) textinput.Model {
	in := textinput.New()
	if provider == "ollama" {
		in.Placeholder = ollama.DefaultEndpoint
		return in
	}
	in.Placeholder = "paste API key here"
	in.EchoMode = textinput.EchoPassword
	in.EchoCharacter = '•'
	return in
}

// --- tea.Cmd factories ---

func validateEmbeddingCmd(r initResult) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		defer cancel()
		if err := probeEmbedder(ctx, r.embeddingConfig()); err != nil {
			return validationErrorMsg{err: err}
		}
		return validationSuccessMsg{}
	}
}

func writeConfigCmd(r initResult, s secrets.Store, force bool) tea.Cmd {
	return func() tea.Msg {
		path, err := storeSecretsAndWriteConfig(r, s, force)
		if err != nil {
			return err
		}
		return configWrittenMsg{path: path}
	}
}

// probeEmbedder checks that cfg reaches a working provider: a ping where the
// provider supports one, otherwise a one-word embedding.
func probeEmbedder(ctx context.Context, cfg embedding.Config) error {
	e, err := openEmbedder(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	if p, ok := e.(embedding.Pinger); ok {
		return p.Ping(ctx)
	}
	_, err = e.Embed(ctx, "lorebook")
	return err
}

// --- Config generation ---

type generatedConfig struct {
	Storage   generatedStorage   `yaml:"storage"`
	Embedding generatedEmbedding `yaml:"embedding"`
}

type generatedStorage struct {
	Backend string `yaml:"backend"`
	URL     string `yaml:"url,omitempty"`
	APIKey  string `yaml:"api_key,omitempty"`
}

type generatedEmbedding struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key,omitempty"`
	Endpoint   string `yaml:"endpoint,omitempty"`
	Dimensions int    `yaml:"dimensions"`
}

// GenerateConfigYAML renders the wizard result. Secrets appear only as
// keyring:// references.
func GenerateConfigYAML(r initResult) (string, error) {
	gc := generatedConfig{
		Storage:   generatedStorage{Backend: r.Backend, URL: r.StorageURL},
		Embedding: generatedEmbedding{Provider: r.Provider, Endpoint: r.Endpoint},
	}
	gc.Embedding.Model, gc.Embedding.Dimensions = defaultModelForProvider(r.Provider)
	if r.StorageKey != "" {
		gc.Storage.APIKey = keyringRef(keyQdrant)
	}
	if r.APIKey != "" {
		gc.Embedding.APIKey = keyringRef(keyOpenAI)
	}

	data, err := yaml.Marshal(gc)
	if err != nil {
		return "", lberr.Wrap(err, lberr.CodeCLISetupFailure, "encoding config")
	}
	return "# lorebook configuration, generated by `lorebook init`.\n" +
		"# See `lorebook doctor` for the effective settings.\n\n" + string(data), nil
}

func defaultModelForProvider(provider string) (string, int) {
	if provider == "ollama" {
		return ollama.DefaultModel, ollama.DefaultDimensions
	}
	return "text-embedding-ada-002", store.DefaultVectorDimensions
}

func keyringRef(key string) string {
	return "keyring://" + secrets.DefaultService + "/" + key
}

// configPathForWrite is replaced in tests.
var configPathForWrite = config.DefaultConfigPath

// storeSecretsAndWriteConfig saves the keys to the keyring and writes the
// config file. An existing file is only replaced with force, unless it is
// still the untouched bootstrap default. Keys already stored are not rolled
// back when the write fails.
func storeSecretsAndWriteConfig(r initResult, s secrets.Store, force bool) (string, error) {
	if r.APIKey != "" {
		if err := s.Store(secrets.DefaultService, keyOpenAI, r.APIKey); err != nil {
			return "", lberr.Wrapf(err, lberr.CodeSecretStoreFailure, "storing OpenAI API key")
		}
	}
	if r.StorageKey != "" {
		if err := s.Store(secrets.DefaultService, keyQdrant, r.StorageKey); err != nil {
			return "", lberr.Wrapf(err, lberr.CodeSecretStoreFailure, "storing Qdrant API key")
		}
	}

	cfgPath, err := configPathForWrite()
	if err != nil {
		return "", err
	}

	if existing, err := os.ReadFile(cfgPath); err == nil && !force && !bytes.Equal(existing, config.DefaultConfigYAML) {
		return "", lberr.Errorf(lberr.CodeCLISetupFailure,
			"config file already exists at %s; use --force to overwrite", cfgPath)
	}

	content, err := GenerateConfigYAML(r)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o700); err != nil {
		return "", lberr.Errorf(lberr.CodeCLISetupFailure, "creating config directory: %w", err)
	}
	if err := os.WriteFile(cfgPath, []byte(content), 0o600); err != nil {
		return "", lberr.Errorf(lberr.CodeCLISetupFailure, "writing config to %s: %w", cfgPath, err)
	}
	return cfgPath, nil
}

// --- Cobra command ---

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactive setup wizard",
		Long: `Walk through choosing a vector store and an embedding provider.

API keys are stored in the OS keyring and referenced from the config file
via keyring:// URIs; no secret is written in plain text.

Afterwards run:
  lorebook serve    start the API
  lorebook doctor   verify the setup`,
		Annotations: map[string]string{annotationNoBootstrap: "true"},
		RunE:        runInit,
	}

	cmd.Flags().Bool("force", false, "overwrite an existing config file")

	return cmd
}

func runInit(cmd *cobra.Command, _ []string) error {
	f, ok := cmd.InOrStdin().(*os.File)
	if !ok || !isTerminal(f) {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(),
			"lorebook init requires an interactive terminal.\n"+
				"To configure lorebook non-interactively, edit ~/.config/lorebook/lorebook.yaml directly.")
		return lberr.New(lberr.CodeCLISetupFailure, "lorebook init: not an interactive terminal")
	}

	force, _ := cmd.Flags().GetBool("force")

	m := newInitModel(secretStoreFactory())
	m.forceOverwrite = force

	final, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if err != nil {
		return lberr.Errorf(lberr.CodeCLISetupFailure, "init wizard error: %w", err)
	}

	fm, ok := final.(initModel)
	if !ok {
		return lberr.New(lberr.CodeCLISetupFailure, "unexpected model type after wizard")
	}
	if fm.errFinal != nil {
		return lberr.Errorf(lberr.CodeCLISetupFailure, "init failed: %w", fm.errFinal)
	}
	if fm.step == stepDone {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\n", fm.configPath)
	}
	return nil
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
