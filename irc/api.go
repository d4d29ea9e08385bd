package irc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/cartisim/relayd/irc/logger"
	"github.com/cartisim/relayd/irc/names"
	"github.com/cartisim/relayd/irc/utils"
)

func newAPIHandler(server *Server) http.Handler {
	api := &relaydAPI{
		server: server,
	}

	router := mux.NewRouter()
	// scraped by Prometheus without credentials
	router.Handle("/metrics", server.metrics.Handler()).Methods(http.MethodGet)

	v1 := router.PathPrefix("/v1").Subrouter()
	v1.Use(api.authMiddleware)
	v1.HandleFunc("/status", api.handleStatus).Methods(http.MethodGet)
	v1.HandleFunc("/channels", api.handleChannels).Methods(http.MethodGet)
	v1.HandleFunc("/channels/{name}", api.handleChannel).Methods(http.MethodGet)
	v1.HandleFunc("/channels/{name}", api.handleUnregisterChannel).Methods(http.MethodDelete)
	v1.HandleFunc("/rehash", api.handleRehash).Methods(http.MethodPost)

	api.router = router
	return api
}

type relaydAPI struct {
	server *Server
	router *mux.Router
}

func (a *relaydAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer a.server.HandlePanic(nil)

	defer a.server.logger.Debug(logger.TypeAdmin, r.Method, r.URL.Path)

	a.router.ServeHTTP(w, r)
}

func (a *relaydAPI) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.checkBearerAuth(r.Header.Get("Authorization")) {
			next.ServeHTTP(w, r)
		} else {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		}
	})
}

func (a *relaydAPI) checkBearerAuth(authHeader string) (authorized bool) {
	if authHeader == "" {
		return false
	}
	c := a.server.Config()
	spaceIdx := strings.IndexByte(authHeader, ' ')
	if spaceIdx < 0 {
		return false
	}
	if !strings.EqualFold("Bearer", authHeader[:spaceIdx]) {
		return false
	}
	providedToken := authHeader[spaceIdx+1:]
	for _, token := range c.API.BearerTokens {
		if utils.SecretTokensMatch(token, providedToken) {
			return true
		}
	}
	return false
}

func (a *relaydAPI) writeJSONResponse(response any, w http.ResponseWriter, r *http.Request) {
	j, err := json.Marshal(response)
	if err == nil {
		j = append(j, '\n') // less annoying in curl output
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(j)
	} else {
		a.server.logger.Error(logger.TypeInternal, "failed to serialize API response", r.URL.String(), err.Error())
		http.Error(w, fmt.Sprintf("failed to serialize json response: %v", err), http.StatusInternalServerError)
	}
}

type apiGenericResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}

func (a *relaydAPI) handleRehash(w http.ResponseWriter, r *http.Request) {
	var response apiGenericResponse
	err := a.server.rehash()
	if err == nil {
		response.Success = true
	} else {
		response.Success = false
		response.Error = err.Error()
	}
	a.writeJSONResponse(response, w, r)
}

type apiStatusResponse struct {
	apiGenericResponse
	Version      string    `json:"version"`
	Server       string    `json:"server"`
	Network      string    `json:"network"`
	StartTime    time.Time `json:"startTime"`
	Users        int       `json:"users"`
	Invisible    int       `json:"invisible"`
	Operators    int       `json:"operators"`
	Unregistered int       `json:"unregistered"`
	Channels     int       `json:"channels"`
	RelayEnabled bool      `json:"relayEnabled"`
	RelayKeyed   bool      `json:"relayKeyed"`
}

func (a *relaydAPI) handleStatus(w http.ResponseWriter, r *http.Request) {
	info := a.server.context.ServerInfo()
	response := apiStatusResponse{
		apiGenericResponse: apiGenericResponse{Success: true},
		Version:            Ver,
		Server:             a.server.name,
		Network:            a.server.Config().Network.Name,
		StartTime:          a.server.ctime,
		Users:              info.Users,
		Invisible:          info.Invisible,
		Operators:          info.Operators,
		Unregistered:       info.Unregistered,
		Channels:           info.Channels,
		RelayEnabled:       a.server.relayClient.Load() != nil,
		RelayKeyed:         a.server.keyring.HasKey(),
	}
	a.writeJSONResponse(response, w, r)
}

type apiChannel struct {
	Name        string    `json:"name"`
	Welcome     string    `json:"welcome,omitempty"`
	Modes       string    `json:"modes"`
	Operators   []string  `json:"operators"`
	Subscribers []string  `json:"subscribers"`
	Created     time.Time `json:"created"`
	Registered  bool      `json:"registered"`
}

type apiChannelsResponse struct {
	apiGenericResponse
	Channels []apiChannel `json:"channels"`
}

func newAPIChannel(info ChannelInfo) apiChannel {
	result := apiChannel{
		Name:        info.Name.String(),
		Welcome:     info.Welcome,
		Modes:       "+" + info.Modes.String(),
		Operators:   make([]string, len(info.Operators)),
		Subscribers: make([]string, len(info.Subscribers)),
		Created:     info.Created,
		Registered:  info.Registered,
	}
	for i, id := range info.Operators {
		result.Operators[i] = id.String()
	}
	for i, id := range info.Subscribers {
		result.Subscribers[i] = id.String()
	}
	return result
}

func (a *relaydAPI) handleChannels(w http.ResponseWriter, r *http.Request) {
	response := apiChannelsResponse{apiGenericResponse: apiGenericResponse{Success: true}}
	for _, info := range a.server.context.ChannelInfos(nil) {
		response.Channels = append(response.Channels, newAPIChannel(info))
	}
	a.writeJSONResponse(response, w, r)
}

func (a *relaydAPI) handleChannel(w http.ResponseWriter, r *http.Request) {
	var response apiChannelsResponse
	name, err := names.NewChannelName(mux.Vars(r)["name"])
	if err != nil {
		response.Error = err.Error()
		response.ErrorCode = "INVALID_CHANNEL_NAME"
		a.writeJSONResponse(response, w, r)
		return
	}
	info, ok := a.server.context.ChannelInfo(name)
	if !ok {
		response.Error = errNoSuchChannel.Error()
		response.ErrorCode = "NO_SUCH_CHANNEL"
	} else {
		response.Success = true
		response.Channels = []apiChannel{newAPIChannel(info)}
	}
	a.writeJSONResponse(response, w, r)
}

// handleUnregisterChannel stops persisting a channel; the live channel
// and its members are untouched.
func (a *relaydAPI) handleUnregisterChannel(w http.ResponseWriter, r *http.Request) {
	var response apiGenericResponse
	name, err := names.NewChannelName(mux.Vars(r)["name"])
	if err != nil {
		response.Error = err.Error()
		response.ErrorCode = "INVALID_CHANNEL_NAME"
		a.writeJSONResponse(response, w, r)
		return
	}
	if _, ok := a.server.context.SetChannelRegistered(name, false); !ok {
		response.Error = errNoSuchChannel.Error()
		response.ErrorCode = "NO_SUCH_CHANNEL"
	} else if err := a.server.channelRegistry.DeleteChannel(name); err != nil {
		response.Error = err.Error()
		response.ErrorCode = "DATASTORE_ERROR"
	} else {
		response.Success = true
	}
	a.writeJSONResponse(response, w, r)
}
