// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// This binary is the main entrypoint for the biomask command line tool.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"flag"
	"github.com/biomask/biomask/client"
	"github.com/biomask/biomask/config"
	"github.com/biomask/biomask/constants"
	"github.com/biomask/biomask/fuzzy"
	"github.com/biomask/biomask/protector"
	"github.com/biomask/biomask/signer"
	glog "github.com/golang/glog"
	"github.com/google/subcommands"
	"github.com/prometheus/client_golang/prometheus"
)

// The current version, displayed via the `version` subcommand.
const biomaskVersion string = "0.1.0"

func defaultConfigPath() string {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		glog.Errorf("Failed to get config directory location: %v", err.Error())
	}
	return filepath.Join(cfgDir, constants.DefaultConfigName)
}

// loadConfig reads the configuration file. A missing file at the default location yields
// the default configuration.
func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) && path == defaultConfigPath() {
		glog.Infof("No configuration file at %v, using defaults", path)
		return config.Default(), nil
	}
	return cfg, err
}

// readInput reads the named file, or stdin for "-".
func readInput(name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(name)
}

// writeOutput writes data to the named file, or stdout for "-".
func writeOutput(name string, data []byte) error {
	if name == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(name, data, 0600)
}

// clientFlags are shared by the commands that talk to the store and embedding service.
type clientFlags struct {
	configFile    string
	storeDir      string
	embeddingAddr string
}

func (c *clientFlags) register(f *flag.FlagSet) {
	f.StringVar(&c.configFile, "config-file", defaultConfigPath(), "Path to a biomask YAML configuration file. Optional.")
	f.StringVar(&c.storeDir, "store-dir", "", "Directory holding helper data records. Overrides the configuration.")
	f.StringVar(&c.embeddingAddr, "embedding-addr", "", "Address of the embedding service. Overrides the configuration.")
}

func (c *clientFlags) newClient() (*client.BiomaskClient, error) {
	cfg, err := loadConfig(c.configFile)
	if err != nil {
		return nil, err
	}
	if c.storeDir != "" {
		cfg.Client.StoreDir = c.storeDir
	}
	if c.embeddingAddr != "" {
		cfg.Client.EmbeddingAddr = c.embeddingAddr
		cfg.Client.StaticEmbeddings = ""
	}
	return client.NewBiomaskClient(cfg, prometheus.NewRegistry())
}

// enrollCmd handles CLI options for the enroll command.
type enrollCmd struct {
	clientFlags
	quiet bool
}

func (*enrollCmd) Name() string { return "enroll" }
func (*enrollCmd) Synopsis() string {
	return "derives a key from a face image and stores its helper data"
}
func (*enrollCmd) Usage() string {
	return fmt.Sprintf(`Usage: biomask enroll [--config-file=<config_file>] <nickname> <image_file>

Examples:
  Enroll alice from a photo, using %s for configuration:
    $ biomask enroll alice alice.png
    Enrollment ID: ...
    <hex key>

  Enroll with the image read from stdin:
    $ biomask enroll alice - < alice.png

Flags:
`, defaultConfigPath())
}
func (e *enrollCmd) SetFlags(f *flag.FlagSet) {
	e.clientFlags.register(f)
	f.BoolVar(&e.quiet, "quiet", false, "Print only the derived key.")
}

func (e *enrollCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() < 2 {
		glog.Errorf("Not enough arguments (expected nickname and image file)")
		return subcommands.ExitFailure
	}

	image, err := readInput(f.Arg(1))
	if err != nil {
		glog.Errorf("Failed to read image: %v", err.Error())
		return subcommands.ExitFailure
	}

	c, err := e.newClient()
	if err != nil {
		glog.Errorf("Failed to create client: %v", err.Error())
		return subcommands.ExitFailure
	}
	defer c.Close()

	result, err := c.GenerateKey(ctx, image, f.Arg(0))
	if err != nil {
		glog.Errorf("Failed to enroll %v: %v", f.Arg(0), err.Error())
		return subcommands.ExitFailure
	}

	if !e.quiet {
		fmt.Fprintln(os.Stderr, "Enrollment ID:", result.EnrollmentID)
	}
	fmt.Println(result.Secret)
	return subcommands.ExitSuccess
}

// recoverCmd handles CLI options for the recover command.
type recoverCmd struct {
	clientFlags
}

func (*recoverCmd) Name() string { return "recover" }
func (*recoverCmd) Synopsis() string {
	return "recovers an enrolled key from one or more face images"
}
func (*recoverCmd) Usage() string {
	return fmt.Sprintf(`Usage: biomask recover [--config-file=<config_file>] <nickname> <image_file>...

Examples:
  Recover alice's key from two photos, using %s for configuration:
    $ biomask recover alice selfie1.png selfie2.png
    <hex key>

Flags:
`, defaultConfigPath())
}
func (r *recoverCmd) SetFlags(f *flag.FlagSet) {
	r.clientFlags.register(f)
}

func (r *recoverCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() < 2 {
		glog.Errorf("Not enough arguments (expected nickname and at least one image file)")
		return subcommands.ExitFailure
	}

	var images [][]byte
	for _, name := range f.Args()[1:] {
		image, err := readInput(name)
		if err != nil {
			glog.Errorf("Failed to read image %v: %v", name, err.Error())
			return subcommands.ExitFailure
		}
		images = append(images, image)
	}

	c, err := r.newClient()
	if err != nil {
		glog.Errorf("Failed to create client: %v", err.Error())
		return subcommands.ExitFailure
	}
	defer c.Close()

	secret, err := c.RestoreKey(ctx, images, f.Arg(0))
	if err != nil {
		glog.Errorf("Failed to recover the key for %v: %v", f.Arg(0), err.Error())
		return subcommands.ExitFailure
	}

	fmt.Println(secret)
	return subcommands.ExitSuccess
}

// passphraseFlags are shared by the seal and open commands.
type passphraseFlags struct {
	configFile    string
	passphraseEnv string
}

func (p *passphraseFlags) register(f *flag.FlagSet) {
	f.StringVar(&p.configFile, "config-file", defaultConfigPath(), "Path to a biomask YAML configuration file. Optional.")
	f.StringVar(&p.passphraseEnv, "passphrase-env", "", "Environment variable holding the passphrase. Overrides the configuration.")
}

func (p *passphraseFlags) protector() (*protector.Protector, string, error) {
	cfg, err := loadConfig(p.configFile)
	if err != nil {
		return nil, "", err
	}
	env := cfg.Client.PassphraseEnv
	if p.passphraseEnv != "" {
		env = p.passphraseEnv
	}
	passphrase, ok := os.LookupEnv(env)
	if !ok {
		return nil, "", fmt.Errorf("no passphrase set in environment variable %v", env)
	}

	pr, err := protector.New(cfg.KDF)
	if err != nil {
		return nil, "", err
	}
	return pr, passphrase, nil
}

// sealCmd handles CLI options for the seal command.
type sealCmd struct {
	passphraseFlags
}

func (*sealCmd) Name() string     { return "seal" }
func (*sealCmd) Synopsis() string { return "seals helper data under a passphrase" }
func (*sealCmd) Usage() string {
	return fmt.Sprintf(`Usage: biomask seal [--passphrase-env=<variable>] <helper_file> <sealed_file>

Example:
  Seal helper data with the passphrase in $%s:
    $ biomask seal helper.json sealed.json

Flags:
`, constants.PassphraseEnv)
}
func (s *sealCmd) SetFlags(f *flag.FlagSet) {
	s.passphraseFlags.register(f)
}

func (s *sealCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() < 2 {
		glog.Errorf("Not enough arguments (expected helper data file and sealed file)")
		return subcommands.ExitFailure
	}

	in, err := readInput(f.Arg(0))
	if err != nil {
		glog.Errorf("Failed to read helper data: %v", err.Error())
		return subcommands.ExitFailure
	}
	helper, err := fuzzy.ParseHelperData(in)
	if err != nil {
		glog.Errorf("Failed to parse helper data: %v", err.Error())
		return subcommands.ExitFailure
	}

	p, passphrase, err := s.protector()
	if err != nil {
		glog.Errorf("Failed to set up sealing: %v", err.Error())
		return subcommands.ExitFailure
	}
	sealed, err := p.Seal(passphrase, helper)
	if err != nil {
		glog.Errorf("Failed to seal helper data: %v", err.Error())
		return subcommands.ExitFailure
	}
	out, err := sealed.Marshal()
	if err != nil {
		glog.Errorf("Failed to serialize sealed helper data: %v", err.Error())
		return subcommands.ExitFailure
	}

	if err := writeOutput(f.Arg(1), out); err != nil {
		glog.Errorf("Failed to write sealed helper data: %v", err.Error())
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// openCmd handles CLI options for the open command.
type openCmd struct {
	passphraseFlags
}

func (*openCmd) Name() string     { return "open" }
func (*openCmd) Synopsis() string { return "opens helper data sealed under a passphrase" }
func (*openCmd) Usage() string {
	return `Usage: biomask open [--passphrase-env=<variable>] <sealed_file> <helper_file>

Example:
  Open sealed helper data and print it:
    $ biomask open sealed.json -

Flags:
`
}
func (o *openCmd) SetFlags(f *flag.FlagSet) {
	o.passphraseFlags.register(f)
}

func (o *openCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() < 2 {
		glog.Errorf("Not enough arguments (expected sealed file and helper data file)")
		return subcommands.ExitFailure
	}

	in, err := readInput(f.Arg(0))
	if err != nil {
		glog.Errorf("Failed to read sealed helper data: %v", err.Error())
		return subcommands.ExitFailure
	}
	sealed, err := protector.ParseEncryptedHelperData(in)
	if err != nil {
		glog.Errorf("Failed to parse sealed helper data: %v", err.Error())
		return subcommands.ExitFailure
	}

	p, passphrase, err := o.protector()
	if err != nil {
		glog.Errorf("Failed to set up unsealing: %v", err.Error())
		return subcommands.ExitFailure
	}
	helper, err := p.Open(passphrase, sealed)
	if err != nil {
		glog.Errorf("Failed to open helper data: %v", err.Error())
		return subcommands.ExitFailure
	}
	out, err := helper.Marshal()
	if err != nil {
		glog.Errorf("Failed to serialize helper data: %v", err.Error())
		return subcommands.ExitFailure
	}

	if err := writeOutput(f.Arg(1), append(out, '\n')); err != nil {
		glog.Errorf("Failed to write helper data: %v", err.Error())
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// keygenCmd handles CLI options for the keygen command.
type keygenCmd struct {
	bits int
}

func (*keygenCmd) Name() string     { return "keygen" }
func (*keygenCmd) Synopsis() string { return "generates an RSA key pair for signing helper data" }
func (*keygenCmd) Usage() string {
	return `Usage: biomask keygen [--bits=<bits>] <private_key_file> <public_key_file>

Example:
    $ biomask keygen private_key.pem public_key.pem
    Public key hash: ...

Flags:
`
}
func (k *keygenCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&k.bits, "bits", 2048, "RSA modulus size in bits.")
}

func (k *keygenCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() < 2 {
		glog.Errorf("Not enough arguments (expected private key file and public key file)")
		return subcommands.ExitFailure
	}

	key, err := signer.GenerateKeyPair(k.bits)
	if err != nil {
		glog.Errorf("Failed to generate key pair: %v", err.Error())
		return subcommands.ExitFailure
	}
	if err := signer.WritePEMFiles(key, f.Arg(0), f.Arg(1)); err != nil {
		glog.Errorf("Failed to write key pair: %v", err.Error())
		return subcommands.ExitFailure
	}

	_, pubPEM, err := signer.EncodePEM(key)
	if err != nil {
		glog.Errorf("Failed to encode public key: %v", err.Error())
		return subcommands.ExitFailure
	}
	fmt.Println("Private key saved to:", f.Arg(0))
	fmt.Println("Public key saved to:", f.Arg(1))
	fmt.Println("Public key hash:", signer.PublicKeyHash(pubPEM))
	return subcommands.ExitSuccess
}

// versionCmd handles CLI options for the version command.
type versionCmd struct{}

func (*versionCmd) Name() string           { return "version" }
func (*versionCmd) Synopsis() string       { return "prints the current version" }
func (*versionCmd) Usage() string          { return "Usage: biomask version" }
func (*versionCmd) SetFlags(*flag.FlagSet) {}
func (*versionCmd) Execute(context.Context, *flag.FlagSet, ...interface{}) subcommands.ExitStatus {
	fmt.Printf("biomask Version %s\n", biomaskVersion)
	return subcommands.ExitSuccess
}

func main() {
	flag.Parse()

	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(&enrollCmd{}, "")
	subcommands.Register(&recoverCmd{}, "")
	subcommands.Register(&sealCmd{}, "")
	subcommands.Register(&openCmd{}, "")
	subcommands.Register(&keygenCmd{}, "")
	subcommands.Register(&versionCmd{}, "")

	ctx := context.Background()
	os.Exit(int(subcommands.Execute(ctx)))
}
