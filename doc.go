// Package sestemplates manages transactional email templates hosted by
// Amazon SES and exposes them over a small JSON API.
//
// Templates live only at the provider. Every operation builds a client bound
// to the region named by the request, issues one provider call and returns
// the provider's answer, or the provider's own error message.
//
// # Basic Usage
//
//	cfg, err := sestemplates.LoadConfig("", sestemplates.WithAWSSES("us-east-1"))
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	client, err := sestemplates.New(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	tmpl, err := client.GetTemplate(ctx, "welcome", "eu-west-1")
//	// tmpl.DynamicFields lists the {{placeholders}} used by the template.
//
// # Placeholders
//
// A placeholder is written {{name}} with optional inner whitespace. Names
// consist of letters, digits, underscores and dots. ExtractPlaceholders
// returns the distinct names of a template in first-occurrence order
// across subject, text and HTML parts.
//
// # Rate limiting
//
// RateLimiter applies two fixed windows per caller: a general window to
// every request and a stricter window to sends. Counters are kept in memory
// or in Redis.
package sestemplates
