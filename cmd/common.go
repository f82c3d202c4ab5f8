package cmd

import (
	"errors"
	u "net/url"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/mediarelay/internal/client"
	"github.com/tanq16/mediarelay/internal/output"
	"github.com/tanq16/mediarelay/internal/resolver"
	"github.com/tanq16/mediarelay/internal/utils"
)

func newRelayClient() *client.Client {
	// credentials embedded in the proxy URL are moved to the client config
	pURL, pUser, pPass := proxyURL, proxyUsername, proxyPassword
	parsedProxy, err := u.Parse(pURL)
	if err == nil && parsedProxy.User != nil && pUser == "" {
		pUser = parsedProxy.User.Username()
		if password, set := parsedProxy.User.Password(); set {
			pPass = password
		}
		parsedProxy.User = nil
		pURL = parsedProxy.String()
	}
	cfg := utils.HTTPClientConfig{
		Timeout:       timeout,
		KATimeout:     kaTimeout,
		ProxyURL:      pURL,
		ProxyUsername: pUser,
		ProxyPassword: pPass,
		UserAgent:     userAgent,
		Headers:       utils.ParseHeaderArgs(headers),
	}
	return client.New(serverURL, utils.NewRelayHTTPClient(cfg))
}

// fail prints a status message for the class of err and exits non-zero.
func fail(stage string, err error) {
	log.Debug().Str("op", "cmd/"+stage).Err(err).Msg("Command failed")
	var serr *client.ServerError
	switch {
	case errors.Is(err, resolver.ErrInvalidInput):
		output.PrintError("Invalid URL: make sure it starts with http:// or https://")
	case errors.As(err, &serr):
		output.PrintError(stageLabel(stage) + " failed: " + serr.Message)
	case errors.Is(err, client.ErrTransfer):
		output.PrintError("Connection to the relay server failed: " + err.Error())
	default:
		output.PrintError(stageLabel(stage) + " failed: " + err.Error())
	}
	os.Exit(1)
}

func stageLabel(stage string) string {
	switch stage {
	case "get-url":
		return "Extraction"
	case "download":
		return "Download"
	case "save":
		return "Saving"
	}
	return "Operation"
}
