package cli

import "context"

// Campaigns prints every UTM campaign link of the account.
func (a *App) Campaigns(ctx context.Context) error {
	cs, err := a.api.ListCampaigns(ctx)
	if err != nil {
		return err
	}
	a.write(renderCampaigns(cs))
	return nil
}

// Events prints the auto-tracking rules with their hit counts.
func (a *App) Events(ctx context.Context) error {
	es, err := a.api.ListEvents(ctx)
	if err != nil {
		return err
	}
	a.write(renderEvents(es))
	return nil
}

func (a *App) Tags(ctx context.Context) error {
	ts, err := a.api.ListTags(ctx)
	if err != nil {
		return err
	}
	a.write(renderTags(ts))
	return nil
}
