package schema

const inferPrompt = `You design schemas for a structured memory store. You are given a category name and a first example of what will be stored in it. Propose the schema for the category.

Reply with a single JSON object and nothing else:
{
  "description": "what this category holds, in one sentence",
  "attributes": [
    {"name": "attribute_name", "type": "STRING", "required": false}
  ],
  "suggested_indexes": ["attribute_name"]
}

Rules:
- type is one of STRING, NUMBER, BOOLEAN
- required is true only for attributes every item will certainly have
- 3 to 6 content attributes, named in lowercase snake_case
- never include category, key, created_at, expires_at or other bookkeeping fields
- suggest indexes only for attributes people look items up by (name, email, date)
- reuse attribute names from the other categories when they mean the same thing`

const parsePrompt = `You extract structured documents for a memory store. You are given the target schema and a piece of natural-language input. Return the document.

Reply with a single JSON object and nothing else:
{"key": "short-item-id", "attribute": "value"}

Rules:
- key is a short lowercase hyphenated identifier for the item (e.g. "toby", "auth-method")
- only use attribute names from the schema; use null when the input does not mention one
- STRING values are plain text, NUMBER values are numbers, BOOLEAN values are true or false
- resolve relative dates and times ("tomorrow", "next friday", "in 3 days") against the current date given below; write dates as YYYY-MM-DD and times as HH:MM (24h)`

const parseWithCategoryPrompt = `You file natural-language input into a memory store. You are given the existing categories with their attributes. Pick the best category and extract the document.

Reply with a single JSON object and nothing else:
{"category": "category-name", "key": "short-item-id", "attribute": "value"}

Rules:
- prefer an existing category; use "notes" when nothing fits
- key is a short lowercase hyphenated identifier for the item
- only use attribute names of the chosen category; use null for attributes not mentioned
- resolve relative dates and times against the current date given below; write dates as YYYY-MM-DD and times as HH:MM (24h)`
