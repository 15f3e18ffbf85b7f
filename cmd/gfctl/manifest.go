package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"example.com/gflink/internal/manifest"
)

func manifestCmd() *cobra.Command {
	var (
		inputs                         []string
		out, keyPath, certPath, jwsOut string
	)
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Hash captures and reports into a manifest, optionally signed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manifest.Build(inputs)
			if err != nil {
				return fmt.Errorf("manifest build: %w", err)
			}
			if keyPath == "" && certPath == "" {
				if err := manifest.Save(m, out); err != nil {
					return fmt.Errorf("manifest save: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "wrote", out)
				return nil
			}
			if keyPath == "" || certPath == "" {
				return errors.New("signing requires --key and --cert")
			}
			keyPEM, err := os.ReadFile(keyPath)
			if err != nil {
				return fmt.Errorf("read key: %w", err)
			}
			certPEM, err := os.ReadFile(certPath)
			if err != nil {
				return fmt.Errorf("read cert: %w", err)
			}
			if jwsOut == "" {
				jwsOut = manifest.SignaturePath(out)
			}
			payload, jws, err := manifest.Sign(m, keyPEM, certPEM, filepath.Base(jwsOut))
			if err != nil {
				return fmt.Errorf("manifest sign: %w", err)
			}
			jwsBytes, err := json.MarshalIndent(jws, "", "  ")
			if err != nil {
				return err
			}
			if err := os.WriteFile(jwsOut, jwsBytes, 0o644); err != nil {
				return fmt.Errorf("write jws: %w", err)
			}
			if err := os.WriteFile(out, payload, 0o644); err != nil {
				return fmt.Errorf("write manifest: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "wrote", out)
			fmt.Fprintln(cmd.OutOrStdout(), "wrote signature", jwsOut)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&inputs, "inputs", nil, "files to list (comma-separated or repeated)")
	cmd.Flags().StringVar(&out, "out", "manifest.json", "manifest output")
	cmd.Flags().StringVar(&keyPath, "key", "", "PEM RSA private key; signs the manifest")
	cmd.Flags().StringVar(&certPath, "cert", "", "PEM certificate of the signer")
	cmd.Flags().StringVar(&jwsOut, "jws-out", "", "signature output (default: manifest path with .jws)")
	cmd.MarkFlagRequired("inputs")
	return cmd
}

func verifyCmd() *cobra.Command {
	var manifestPath, jwsPath, certPath, root string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check manifest digests and, with --cert, its signature",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, raw, err := manifest.Load(manifestPath)
			if err != nil {
				return err
			}
			if certPath != "" {
				if jwsPath == "" {
					jwsPath = manifest.SignaturePath(manifestPath)
				}
				certPEM, err := os.ReadFile(certPath)
				if err != nil {
					return fmt.Errorf("read cert: %w", err)
				}
				jwsBytes, err := os.ReadFile(jwsPath)
				if err != nil {
					return fmt.Errorf("read jws: %w", err)
				}
				jws, err := manifest.ParseDetachedJWS(jwsBytes)
				if err != nil {
					return fmt.Errorf("parse jws: %w", err)
				}
				if err := manifest.VerifyDetachedJWS(raw, jws, certPEM); err != nil {
					return fmt.Errorf("verify signature: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "signature OK")
			}
			if err := manifest.Verify(m, root); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d items OK\n", len(m.Items))
			return nil
		},
	}
	cmd.Flags().StringVar(&manifestPath, "manifest", "", "manifest JSON")
	cmd.Flags().StringVar(&jwsPath, "jws", "", "detached signature (default: manifest path with .jws)")
	cmd.Flags().StringVar(&certPath, "cert", "", "signer certificate (PEM)")
	cmd.Flags().StringVar(&root, "root", ".", "directory relative item paths resolve against")
	cmd.MarkFlagRequired("manifest")
	return cmd
}
