package business

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/api/mybusinessaccountmanagement/v1"
	"google.golang.org/api/mybusinessbusinessinformation/v1"
	"google.golang.org/api/option"

	"github.com/profile-agent/pkg/cache"
	"github.com/profile-agent/pkg/logger"
)

// AccountService discovers accounts and locations through the official
// per-resource APIs. Listings change rarely, so results sit in the long
// cache tier.
type AccountService struct {
	oauthManager *OAuthManager
	cache        *cache.Cache
	log          *logger.Logger
}

// NewAccountService creates an account discovery service.
func NewAccountService(oauth *OAuthManager, c *cache.Cache, log *logger.Logger) *AccountService {
	return &AccountService{
		oauthManager: oauth,
		cache:        c,
		log:          log.WithComponent("accounts"),
	}
}

// ListAccounts returns the Business Profile accounts visible to the
// authenticated user.
func (s *AccountService) ListAccounts(ctx context.Context) ([]Account, error) {
	key := cache.Key("accounts")
	if data, ok := s.cache.Get(key); ok {
		var accounts []Account
		if err := json.Unmarshal(data, &accounts); err == nil {
			return accounts, nil
		}
	}

	ts, err := s.oauthManager.TokenSource(ctx)
	if err != nil {
		return nil, err
	}
	svc, err := mybusinessaccountmanagement.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("account management service: %w", err)
	}

	resp, err := svc.Accounts.List().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	accounts := make([]Account, 0, len(resp.Accounts))
	for _, a := range resp.Accounts {
		accounts = append(accounts, Account{
			Name:        a.Name,
			AccountName: a.AccountName,
			Type:        a.Type,
		})
	}

	if data, err := json.Marshal(accounts); err == nil {
		s.cache.Set(key, data, cache.TTLLong)
	}

	s.log.Debug().Int("count", len(accounts)).Msg("Fetched accounts")
	return accounts, nil
}

// ListLocations returns the locations under an account
// (name "accounts/{id}").
func (s *AccountService) ListLocations(ctx context.Context, accountName string) ([]Location, error) {
	key := cache.Key("locations", accountName)
	if data, ok := s.cache.Get(key); ok {
		var locations []Location
		if err := json.Unmarshal(data, &locations); err == nil {
			return locations, nil
		}
	}

	ts, err := s.oauthManager.TokenSource(ctx)
	if err != nil {
		return nil, err
	}
	svc, err := mybusinessbusinessinformation.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("business information service: %w", err)
	}

	var locations []Location
	pageToken := ""
	for {
		call := svc.Accounts.Locations.List(accountName).
			ReadMask("name,title,websiteUri").
			PageSize(100).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list locations: %w", err)
		}

		for _, l := range resp.Locations {
			locations = append(locations, Location{
				Name:       l.Name,
				Title:      l.Title,
				WebsiteURI: l.WebsiteUri,
			})
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	if data, err := json.Marshal(locations); err == nil {
		s.cache.Set(key, data, cache.TTLLong)
	}

	s.log.Debug().
		Str("account", accountName).
		Int("count", len(locations)).
		Msg("Fetched locations")
	return locations, nil
}
