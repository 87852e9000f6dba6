// Copyright 2025 go-qnn Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/embedded-nn/go-qnn/internal/envconfig"
)

func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

// NewCLI builds the qnn command tree.
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "qnn",
		Short:         "Quantized convolution kernels",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	envVars := envconfig.AsMap()
	cpuCmd := newCPUInfoCmd()
	benchCmd := newBenchCmd()

	appendEnvDocs(cpuCmd, []envconfig.EnvVar{envVars["HWY_NO_SIMD"]})
	appendEnvDocs(benchCmd, []envconfig.EnvVar{
		envVars["HWY_NO_SIMD"],
		envVars["QNN_DEBUG"],
		envVars["QNN_MAX_SCRATCH"],
	})

	rootCmd.AddCommand(cpuCmd, benchCmd)
	return rootCmd
}
