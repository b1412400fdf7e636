package cli

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/rostersync/internal/cipher"
	"github.com/roach88/rostersync/internal/devserver"
)

// SealOptions holds flags shared by the seal subcommands.
type SealOptions struct {
	*RootOptions
	Key      string
	Password string
}

// SealedValue pairs a plaintext with its sealed form.
type SealedValue struct {
	Plaintext  string `json:"plaintext"`
	Ciphertext string `json:"ciphertext"`
}

// KeyResult is the output of seal keygen and seal unwrap.
type KeyResult struct {
	KeyHex  string `json:"key_hex"`
	Wrapped string `json:"wrapped,omitempty"`
}

// NewSealCommand creates the seal command and its subcommands.
func NewSealCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SealOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seal",
		Short: "Manage field keys and sealed student fields",
		Long: `Generate, wrap and unwrap field keys, and seal or open student fields.

Student ids and names travel as hex(nonce || XChaCha20-Poly1305 ciphertext).
A wrapped key is the field key sealed under a password-derived key
(argon2id), suitable for storing next to the roster.

Examples:
  rostersync seal keygen --password hunter2
  rostersync seal unwrap --password hunter2 <wrapped>
  rostersync seal encrypt --key $KEY Ada Lovelace
  rostersync seal decrypt --key $KEY <ciphertext>
  rostersync seal hash 1001`,
	}

	cmd.PersistentFlags().StringVar(&opts.Key, "key", "", "hex field key (or "+EnvKey+")")
	cmd.PersistentFlags().StringVar(&opts.Password, "password", "", "password for wrapping the key")

	cmd.AddCommand(newSealSubcommand("keygen", "Generate a new field key", cobra.NoArgs, opts, runKeygen))
	cmd.AddCommand(newSealSubcommand("unwrap <wrapped>", "Recover a field key from its wrapped form", cobra.ExactArgs(1), opts, runUnwrap))
	cmd.AddCommand(newSealSubcommand("encrypt <value>...", "Seal values with the field key", cobra.MinimumNArgs(1), opts, runEncrypt))
	cmd.AddCommand(newSealSubcommand("decrypt <ciphertext>...", "Open sealed values with the field key", cobra.MinimumNArgs(1), opts, runDecrypt))
	cmd.AddCommand(newSealSubcommand("hash <student-id>...", "Compute the hashed identity of student ids", cobra.MinimumNArgs(1), opts, runHash))

	return cmd
}

func newSealSubcommand(use, short string, args cobra.PositionalArgs, opts *SealOptions, run func(*SealOptions, []string, *cobra.Command) error) *cobra.Command {
	return &cobra.Command{
		Use:           use,
		Short:         short,
		Args:          args,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts, args, cmd)
		},
	}
}

func (o *SealOptions) fieldCipher() (*cipher.XChaCha, error) {
	cfg, err := loadCommandConfig(o.RootOptions)
	if err != nil {
		return nil, err
	}
	if o.Key != "" {
		cfg.KeyHex = o.Key
	}
	c, err := cfg.Cipher()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid field key", err)
	}
	return c, nil
}

func runKeygen(opts *SealOptions, _ []string, cmd *cobra.Command) error {
	key, err := cipher.GenerateKey()
	if err != nil {
		return WrapExitError(ExitFailure, "failed to generate key", err)
	}
	result := KeyResult{KeyHex: hex.EncodeToString(key)}
	if opts.Password != "" {
		result.Wrapped, err = cipher.WrapKey(key, opts.Password)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to wrap key", err)
		}
	}
	return newFormatter(cmd, opts.RootOptions).Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "Key: %s\n", result.KeyHex)
		if result.Wrapped != "" {
			fmt.Fprintf(w, "Wrapped: %s\n", result.Wrapped)
		}
	})
}

func runUnwrap(opts *SealOptions, args []string, cmd *cobra.Command) error {
	if opts.Password == "" {
		return NewExitError(ExitCommandError, "--password is required")
	}
	key, err := cipher.UnwrapKey(args[0], opts.Password)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to unwrap key", err)
	}
	result := KeyResult{KeyHex: hex.EncodeToString(key)}
	return newFormatter(cmd, opts.RootOptions).Success(result, func(w io.Writer) {
		fmt.Fprintln(w, result.KeyHex)
	})
}

func runEncrypt(opts *SealOptions, args []string, cmd *cobra.Command) error {
	c, err := opts.fieldCipher()
	if err != nil {
		return err
	}
	values := make([]SealedValue, 0, len(args))
	for _, plaintext := range args {
		ct, err := c.Encrypt(cmd.Context(), plaintext)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to encrypt", err)
		}
		values = append(values, SealedValue{Plaintext: plaintext, Ciphertext: ct})
	}
	return newFormatter(cmd, opts.RootOptions).Success(values, func(w io.Writer) {
		for _, v := range values {
			fmt.Fprintln(w, v.Ciphertext)
		}
	})
}

func runDecrypt(opts *SealOptions, args []string, cmd *cobra.Command) error {
	c, err := opts.fieldCipher()
	if err != nil {
		return err
	}
	values := make([]SealedValue, 0, len(args))
	for _, ct := range args {
		plaintext, err := c.Decrypt(cmd.Context(), ct)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to decrypt", err)
		}
		values = append(values, SealedValue{Plaintext: plaintext, Ciphertext: ct})
	}
	return newFormatter(cmd, opts.RootOptions).Success(values, func(w io.Writer) {
		for _, v := range values {
			fmt.Fprintln(w, v.Plaintext)
		}
	})
}

func runHash(opts *SealOptions, args []string, cmd *cobra.Command) error {
	hashes := make(map[string]string, len(args))
	for _, id := range args {
		hashes[id] = devserver.HashStudentID(id)
	}
	return newFormatter(cmd, opts.RootOptions).Success(hashes, func(w io.Writer) {
		for _, id := range args {
			fmt.Fprintf(w, "%s %s\n", hashes[id], id)
		}
	})
}
