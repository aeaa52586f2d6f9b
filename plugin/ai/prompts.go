package ai

import "fmt"

// extractionPromptTemplate asks the model to extract, in one call, a title,
// summaries, categories, entities and dynamic metadata for a piece of text.
const extractionPromptTemplate = `You are an AI assistant that extracts structured information from unstructured text and generates appropriate metadata.

Given the following text, analyze it comprehensively and extract all relevant information:

TEXT:
%s

Perform a complete analysis and return your results in the following JSON format:
{
    "title": "A concise, descriptive title (max 80 characters)",
    "description": "A brief summary of the key points (max 200 characters)",
    "summary": "A longer summary preserving essential information (max 100 words)",
    "categories": ["category1", "category2"],
    "key_facts": ["fact1", "fact2", ...],
    "dates_times": ["date1", "date2", ...],
    "entities": {
        "people": ["person1", "person2", ...],
        "places": ["place1", "place2", ...],
        "organizations": ["org1", "org2", ...]
    },
    "action_items": ["task1", "task2", ...],
    "dynamic_fields": {
        "priority": "high|medium|low",
        "status": "active|completed|pending",
        "due_date": "YYYY-MM-DD or null",
        "source": "meeting|email|note|etc",
        "tags": ["tag1", "tag2", ...],
        "additional_field_name": "field_value"
    }
}

Guidelines:
- If the original text is Chinese, keep extracted fields also in Chinese
- Title: Be specific and descriptive, capture the main topic, avoid generic words
- Description: Summarize 2-3 main points in complete sentences
- Summary: Preserve the most important information while being concise
- Categories: Choose from common categories like "work", "personal", "learning", "meetings", "tasks", "ideas", "projects" or suggest new ones
- Dynamic fields: Include relevant metadata that would help with searching and organization
- Only include fields that have relevant content from the text
- For dynamic fields, focus on practical metadata like priority, status, due dates, source type, and relevant tags`

// searchAnalysisPromptTemplate asks the model to turn a free-form search
// query into structured filter criteria.
const searchAnalysisPromptTemplate = `Analyze this search query and extract structured search criteria for filtering search results.

Search Query: "%s"

Return a JSON object with the following structure:
{
    "field_filters": {"field_name": "value"},
    "categories": ["category1", "category2"],
    "people": ["person1", "person2"],
    "places": ["place1", "place2"],
    "date_hints": ["specific dates or time periods mentioned"],
    "priority_level": "high/medium/low based on query urgency",
    "search_intent": "brief description of what user is looking for"
}

Guidelines:
- field_filters should map to common dynamic field names (category, people, places, etc.)
- Extract any mentioned people, places, categories from the query
- Identify time/date references if mentioned
- Focus on extracting filter criteria, not rewriting the search query
- Keep response concise and structured`

func extractionPrompt(text string) string {
	return fmt.Sprintf(extractionPromptTemplate, text)
}

func searchAnalysisPrompt(query string) string {
	return fmt.Sprintf(searchAnalysisPromptTemplate, query)
}
