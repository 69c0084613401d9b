package config

import (
	"errors"
	"os"

	gaconfig "github.com/JaimeStill/go-agents/pkg/config"
)

const (
	EnvAgentName         = "PAIRWISE_AGENT_NAME"
	EnvAgentProviderName = "PAIRWISE_AGENT_PROVIDER_NAME"
	EnvAgentBaseURL      = "PAIRWISE_AGENT_BASE_URL"
	EnvAgentModelName    = "PAIRWISE_AGENT_MODEL_NAME"
	EnvAgentToken        = "PAIRWISE_AGENT_TOKEN"
	EnvAgentDeployment   = "PAIRWISE_AGENT_DEPLOYMENT"
	EnvAgentAPIVersion   = "PAIRWISE_AGENT_API_VERSION"
	EnvAgentAuthType     = "PAIRWISE_AGENT_AUTH_TYPE"
)

// defaultAgentName identifies the classification agent in provider logs
// when the agent section leaves name unset.
const defaultAgentName = "pairwise-oracle"

// agentOptions maps environment variables onto provider option keys.
var agentOptions = []struct{ env, key string }{
	{EnvAgentToken, "token"},
	{EnvAgentDeployment, "deployment"},
	{EnvAgentAPIVersion, "api_version"},
	{EnvAgentAuthType, "auth_type"},
}

// FinalizeAgent completes the agent section for the agent oracle. Values
// from the file are laid over go-agents defaults, PAIRWISE_AGENT_* variables
// override both, and the result must name a provider and a model.
func FinalizeAgent(c *gaconfig.AgentConfig) error {
	merged := gaconfig.DefaultAgentConfig()
	merged.Merge(c)
	*c = merged

	if c.Name == "" {
		c.Name = defaultAgentName
	}
	if c.Provider == nil {
		c.Provider = &gaconfig.ProviderConfig{}
	}
	if c.Model == nil {
		c.Model = &gaconfig.ModelConfig{}
	}

	overrideString(&c.Name, EnvAgentName)
	overrideString(&c.Provider.Name, EnvAgentProviderName)
	overrideString(&c.Provider.BaseURL, EnvAgentBaseURL)
	overrideString(&c.Model.Name, EnvAgentModelName)

	for _, o := range agentOptions {
		v := os.Getenv(o.env)
		if v == "" {
			continue
		}
		if c.Provider.Options == nil {
			c.Provider.Options = make(map[string]any)
		}
		c.Provider.Options[o.key] = v
	}

	switch {
	case c.Provider.Name == "":
		return errors.New("provider name required")
	case c.Model.Name == "":
		return errors.New("model name required")
	}
	return nil
}

func overrideString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}
