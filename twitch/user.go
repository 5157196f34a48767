package twitch

import (
	"context"
	"fmt"
	"net/url"

	"golang.org/x/oauth2"
)

// User is the response type from https://dev.twitch.tv/docs/api/reference/#get-users.
type User struct {
	ID              string `json:"id"`
	Login           string `json:"login"`
	DisplayName     string `json:"display_name"`
	Type            string `json:"type"`
	BroadcasterType string `json:"broadcaster_type"`
	Description     string `json:"description"`
	ProfileImageURL string `json:"profile_image_url"`
	OfflineImageURL string `json:"offline_image_url"`
	ViewCount       int    `json:"view_count"`
	Email           string `json:"email"`
	CreatedAt       string `json:"created_at"`
}

// Users resolves user information. Each element of users is queried by its ID
// if one is set and by its login otherwise. At most 100 users may be resolved
// per call. The result may have fewer elements than the query if some users
// don't exist, and may not preserve order.
func Users(ctx context.Context, client Client, tok *oauth2.Token, users []User) ([]User, error) {
	v := url.Values{}
	for _, u := range users {
		switch {
		case u.ID != "":
			v.Add("id", u.ID)
		case u.Login != "":
			v.Add("login", u.Login)
		}
	}
	u := make([]User, 0, len(users))
	_, err := reqjson(ctx, client, tok, "GET", apiurl("/helix/users", v), &u)
	if err != nil {
		return nil, fmt.Errorf("couldn't get users info: %w", err)
	}
	return u, nil
}
