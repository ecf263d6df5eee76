package handler

import (
	"net/http"
	"strings"

	"convochat/internal/pkg/errs"
	"convochat/internal/pkg/logx"
	"convochat/internal/pkg/resp"
)

type UsernameStatus struct {
	Username string `json:"username"`
	Exists   bool   `json:"exists"`
}

// HandleValidateUsers reports which usernames exist. Names come from repeated "username"
// parameters, a comma separated "usernames" parameter, or both.
func HandleValidateUsers(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		names := query["username"]
		if csv := query.Get("usernames"); csv != "" {
			names = append(names, strings.Split(csv, ",")...)
		}
		if len(names) == 0 {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		names = dedupe(names)
		if len(names) > maxParticipants {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		results := make([]UsernameStatus, 0, len(names))
		if len(names) == 0 {
			resp.RespondSuccess(w, r, results)
			return
		}

		found, err := deps.Store.FindUsersByUsernames(r.Context(), names)
		if err != nil {
			logx.Error(err, "validate users: lookup failed")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		known := make(map[string]struct{}, len(found))
		for _, u := range found {
			known[u.Username] = struct{}{}
		}

		for _, name := range names {
			_, ok := known[name]
			results = append(results, UsernameStatus{Username: name, Exists: ok})
		}

		resp.RespondSuccess(w, r, results)
	}
}
