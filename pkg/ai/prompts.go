package ai

const AliasPrompt = `
# Task Context
You are a helpful assistant specialized in identifying nodes of an investigation graph that refer to the same real-world thing. You will be provided with a list of node labels and their types.

# Background Data
%s

# Detailed Task Description & Rules
- Find labels that name the same real-world entity, actor, organization, location, asset or event.
- Consider variations such as case differences, legal suffixes ("Acme" vs "Acme Corp"), abbreviations and full names, punctuation.
- Be careful: distinct legal entities, subsidiaries and business units stay separate (e.g., "Amazon" and "Amazon Web Services").
- Never group nodes of different types.
- Choose a canonical label for each group. It must be one of the labels in the group.

# Output Formatting
Return a JSON object with this structure:
{
  "aliases": [
    {
      "canonicalLabel": "<one of the labels>",
      "labels": ["<label1>", "<label2>"]
    }
  ]
}
Return {"aliases": []} when nothing should be merged.
`

const ExtractPrompt = `
# Task Context
You are an analyst building an investigation knowledge graph for financial intelligence work. You read one evidence item at a time and extract what it states.

# Background Data
Evidence title: %s
Evidence published at: %s
Evidence text:
%s

# Detailed Task Description & Rules
- Extract every named entity mentioned in the text as a mention with a label and a type.
- Allowed types: entity, actor, location, asset, event, organization.
  * actor: a natural person
  * organization: a company, bank, agency, government or other institution
  * location: a country, city, region or address
  * asset: money, securities, commodities, accounts, vessels, property
  * event: a discrete occurrence (a payment, acquisition, sanction, raid, filing). Label events with a short clause such as "Acme Corp acquires Borealis".
  * entity: anything else
- For events give the date in RFC 3339 format when the text states one, otherwise leave timestamp empty.
- Extract relations between mentions with a short lower-case verb phrase as type (e.g., "funds", "supplies", "owns", "located_in", "causes").
- When the text disputes or refutes another claim use the relation type "contradicts".
- Connect every event to its participants with relations of type "involves".
- Only use labels in relations that also appear in mentions.
- Give each mention a confidence between 0 and 1 reflecting how clearly the text states it.
- Extract only what the text supports. Do not add outside knowledge.

# Output Formatting
Return a JSON object with the keys "mentions" and "relations".
`

const BriefingPrompt = `
# Task Context
You write short intelligence briefings for analysts. You are given the hypotheses (paths) of an investigation and must summarize them.

# Background Data
Investigation query: %s

Hypotheses:
%s

# Detailed Task Description & Rules
- Write one to three sentences for each of: what_changed, why_it_matters, what_to_watch_next.
- Every sentence must end with at least one citation of the form [[path-id]] naming the hypothesis that supports it.
- Only cite ids from the list above. Do not state anything no listed hypothesis supports.
- Prefer active hypotheses over weak ones and say so when a statement rests on a weak hypothesis.
- %s
- key_themes: two to five short noun phrases.

# Output Formatting
Return a JSON object with the keys "what_changed", "why_it_matters", "what_to_watch_next" and "key_themes".
`

const BriefingConfidentNote = `At least one hypothesis is active. Write plainly but do not overstate certainty.`

const BriefingLowConfidenceNote = `No hypothesis is active. Open what_changed with the phrase "Low confidence:" and keep the tone tentative throughout.`
