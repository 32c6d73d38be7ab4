package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Custom Account fields carrying the acquisition assessment.
const (
	FieldAcquisitionScore = "Acquisition_Score__c"
	FieldRecommendation   = "Recommendation__c"
)

// Account is the slice of a Salesforce Account the sync reads back.
type Account struct {
	ID               string  `json:"Id" salesforce:"Id"`
	Name             string  `json:"Name" salesforce:"Name"`
	Website          string  `json:"Website" salesforce:"Website"`
	BillingCity      string  `json:"BillingCity" salesforce:"BillingCity"`
	BillingState     string  `json:"BillingState" salesforce:"BillingState"`
	AcquisitionScore float64 `json:"Acquisition_Score__c" salesforce:"Acquisition_Score__c"`
	Recommendation   string  `json:"Recommendation__c" salesforce:"Recommendation__c"`
}

var accountFields = []string{
	"Id", "Name", "Website", "BillingCity", "BillingState",
	FieldAcquisitionScore, FieldRecommendation,
}

// FindAccountByWebsite returns the first Account whose Website matches, or
// nil when there is none.
func FindAccountByWebsite(ctx context.Context, c Client, website string) (*Account, error) {
	if website == "" {
		return nil, nil
	}
	soql := fmt.Sprintf("SELECT %s FROM Account WHERE Website = '%s' LIMIT 1",
		strings.Join(accountFields, ", "), escapeSOQL(website))

	var accounts []Account
	if err := c.Query(ctx, soql, &accounts); err != nil {
		return nil, eris.Wrapf(err, "sf: find account by website %s", website)
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	return &accounts[0], nil
}

// CreateAccount inserts an Account and returns its ID.
func CreateAccount(ctx context.Context, c Client, fields map[string]any) (string, error) {
	if name, _ := fields["Name"].(string); name == "" {
		return "", eris.New("sf: account Name is required")
	}
	id, err := c.InsertOne(ctx, "Account", fields)
	if err != nil {
		return "", eris.Wrap(err, "sf: create account")
	}
	return id, nil
}

// UpdateAccount patches an existing Account.
func UpdateAccount(ctx context.Context, c Client, id string, fields map[string]any) error {
	if id == "" {
		return eris.New("sf: account id is required")
	}
	if len(fields) == 0 {
		return eris.New("sf: no fields to update")
	}
	if err := c.UpdateOne(ctx, "Account", id, fields); err != nil {
		return eris.Wrapf(err, "sf: update account %s", id)
	}
	return nil
}

// escapeSOQL escapes backslashes and single quotes in a string literal.
func escapeSOQL(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
